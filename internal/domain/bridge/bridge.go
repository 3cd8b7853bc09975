package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownResource  = errors.New("unknown resource")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNoHost           = errors.New("no host attached")
)

// Requester performs cross-origin requests on behalf of scripts
type Requester interface {
	Do(ctx context.Context, req *types.HTTPRequest) (*types.HTTPResponse, error)
}

// Notice is a notification raised by a script
type Notice struct {
	ScriptID   string `json:"script_id"`
	ScriptName string `json:"script_name"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Image      string `json:"image,omitempty"`
}

// Host is the browser side: tabs and notifications
type Host interface {
	OpenTab(ctx context.Context, url string, background bool) error
	Notify(ctx context.Context, n Notice) error
}

// Recorder receives bridge call metrics
type Recorder interface {
	RecordBridgeCall(capability, status string)
}

// Bridge owns the privileged services scripts reach through their handles
type Bridge struct {
	kv        persistence.KV
	cache     *resources.Cache
	requester Requester
	host      Host
	recorder  Recorder
	policy    *bluemonday.Policy
	log       *logging.Logger
	inflight  sync.WaitGroup
}

// Option configures a Bridge
type Option func(*Bridge)

// WithRequester sets the cross-origin request transport
func WithRequester(r Requester) Option { return func(b *Bridge) { b.requester = r } }

// WithHost attaches the tab and notification host
func WithHost(h Host) Option { return func(b *Bridge) { b.host = h } }

// WithRecorder reports calls to r
func WithRecorder(r Recorder) Option { return func(b *Bridge) { b.recorder = r } }

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option { return func(b *Bridge) { b.log = l } }

// New creates a bridge over the value store and resource cache
func New(kv persistence.KV, cache *resources.Cache, opts ...Option) *Bridge {
	b := &Bridge{
		kv:     kv,
		cache:  cache,
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logging.OrNop(b.log).Component("bridge")
	return b
}

// Handle returns the capability handle for one script. The handle carries
// the script's id and grants; nothing else is shared between scripts.
func (b *Bridge) Handle(script *types.Script) *Handle {
	return &Handle{
		bridge: b,
		script: script.Clone(),
		grants: GrantsOf(script.Grants),
		turns:  NewTurns(),
		log:    b.log.With(zap.String("script_id", script.ID)),
	}
}

// ClearValues deletes every stored value of a script
func (b *Bridge) ClearValues(ctx context.Context, scriptID string) error {
	keys, err := b.kv.List(ctx, valuePrefix(scriptID))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every in-flight cross-origin request has finished
func (b *Bridge) Wait() {
	b.inflight.Wait()
}

func (b *Bridge) record(c Capability, err error) {
	if b.recorder == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrPermissionDenied):
		status = "denied"
	case err != nil:
		status = "error"
	}
	b.recorder.RecordBridgeCall(string(c), status)
}

func (b *Bridge) sanitize(s string) string {
	return strings.TrimSpace(b.policy.Sanitize(s))
}

func valuePrefix(scriptID string) string {
	return "value/" + scriptID + "/"
}

func validateRequestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRequest)
	}
	return nil
}
