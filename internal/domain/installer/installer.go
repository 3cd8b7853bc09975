package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/match"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/metadata"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/version"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// Fetched is a downloaded body
type Fetched struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Fetcher downloads script bodies and resources. Implementations must not
// retry on their own.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Fetched, error)
}

// Recorder receives install metrics
type Recorder interface {
	RecordInstall(outcome string, diagnostics int, duration time.Duration)
}

// Preview is what the confirmation dialog shows before commit
type Preview struct {
	Script    *types.Script
	Existing  *types.Script
	Update    bool
	RunsAt    []string
	NotRunsAt []string
}

// Request describes one install attempt. Source, when set, is used instead
// of fetching URL; URL then only serves as the source location.
type Request struct {
	URL     string
	Source  []byte
	Force   bool
	Confirm func(ctx context.Context, p Preview) bool
}

// Installer runs the install and update lifecycle and owns every write to
// the script store.
type Installer struct {
	store     *store.Store
	persister *store.Persister
	cache     *resources.Cache
	fetcher   Fetcher
	locks     *keyLocks

	recorder Recorder
	onRemove func(ctx context.Context, s *types.Script)
	log      *logging.Logger
}

// Option configures an Installer
type Option func(*Installer)

// WithPersister saves a snapshot after every committed change
func WithPersister(p *store.Persister) Option {
	return func(i *Installer) { i.persister = p }
}

// WithRecorder reports outcomes to r
func WithRecorder(r Recorder) Option {
	return func(i *Installer) { i.recorder = r }
}

// WithRemoveHook runs fn after a script is removed
func WithRemoveHook(fn func(ctx context.Context, s *types.Script)) Option {
	return func(i *Installer) { i.onRemove = fn }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(i *Installer) { i.log = l }
}

// New creates an installer
func New(st *store.Store, cache *resources.Cache, fetcher Fetcher, opts ...Option) *Installer {
	i := &Installer{
		store:   st,
		cache:   cache,
		fetcher: fetcher,
		locks:   newKeyLocks(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.log = logging.OrNop(i.log).Component("installer")
	return i
}

// Install runs one attempt to completion and returns its outcome. The
// caller may cancel ctx until the commit; after that the change stands.
func (i *Installer) Install(ctx context.Context, req Request) Result {
	start := time.Now()
	res := i.install(ctx, req)

	if i.recorder != nil {
		i.recorder.RecordInstall(res.Outcome.String(), len(res.Diagnostics), time.Since(start))
	}
	fields := []zap.Field{zap.String("url", req.URL), zap.Stringer("outcome", res.Outcome)}
	if res.Script != nil {
		fields = append(fields, zap.String("script", res.Script.Key().String()), zap.String("version", res.Script.Version))
	}
	if res.Err != nil {
		i.log.Warn("Install did not commit", append(fields, zap.Error(res.Err))...)
	} else {
		i.log.Info("Install finished", fields...)
	}
	return res
}

func (i *Installer) install(ctx context.Context, req Request) Result {
	blob := req.Source
	sourceURL := req.URL
	if blob == nil {
		fetched, err := i.fetchScript(ctx, req.URL)
		if err != nil {
			return Result{Outcome: FetchError, Err: err}
		}
		blob = fetched.Body
		if fetched.FinalURL != "" {
			sourceURL = fetched.FinalURL
		}
	}

	sc, err := metadata.Parse(blob, sourceURL)
	if err != nil {
		return Result{Outcome: MalformedMetadata, Err: err}
	}

	unlock := i.locks.lock(sc.Key())
	defer unlock()

	res := Result{Script: sc}
	existing, exists := i.store.Find(sc.Name, sc.Namespace)
	if exists {
		res.Previous = existing.Script
		if outcome, err := collide(sc.Version, existing.Script.Version, req.Force); err != nil {
			res.Outcome, res.Err = outcome, err
			return res
		}
	}

	rules := match.Compile(store.RuleSet(sc))
	res.Diagnostics = rules.Diagnostics()
	if req.Confirm != nil {
		runs, notRuns := rules.Describe()
		preview := Preview{Script: sc.Clone(), Existing: res.Previous, Update: exists, RunsAt: runs, NotRunsAt: notRuns}
		if !req.Confirm(ctx, preview) {
			res.Outcome, res.Err = Rejected, ErrRejected
			return res
		}
	}

	if err := i.fetchResources(ctx, sc); err != nil {
		res.Outcome, res.Err = ResourceFetchError, err
		return res
	}

	// Commit: nothing below observes cancellation.
	result, entry := i.store.Install(sc)
	res.Script = entry.Script
	res.Outcome = Inserted
	if result == store.Updated {
		res.Outcome = UpdateApplied
	}
	i.persist(context.WithoutCancel(ctx))
	return res
}

// collide decides what an incoming version does to an installed one
func collide(incoming, installed string, force bool) (Outcome, error) {
	c, ok := version.Compare(incoming, installed)
	switch {
	case ok && c > 0:
		return UpdateApplied, nil
	case ok && c < 0:
		return StaleVersion, fmt.Errorf("%w: %s < %s", ErrStaleVersion, incoming, installed)
	case force:
		return UpdateApplied, nil
	default:
		return DuplicateNoOp, fmt.Errorf("%w: %s", ErrDuplicate, installed)
	}
}

func (i *Installer) fetchScript(ctx context.Context, url string) (*Fetched, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no url", ErrFetch)
	}
	if i.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}
	fetched, err := i.fetcher.Fetch(ctx, url)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}
	return fetched, nil
}

// fetchResources downloads every dependency missing from the cache. Either
// all of them end up cached or none of the new ones do.
func (i *Installer) fetchResources(ctx context.Context, sc *types.Script) error {
	deps := sc.Dependencies()
	fetched := make([]*Fetched, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool)
	for n, dep := range deps {
		if seen[dep.URL] || i.cache.Has(gctx, dep.URL) {
			continue
		}
		seen[dep.URL] = true
		g.Go(func() error {
			if i.fetcher == nil {
				return fmt.Errorf("%w: %s: no fetcher configured", ErrResourceFetch, dep.URL)
			}
			f, err := i.fetcher.Fetch(gctx, dep.URL)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrResourceFetch, dep.URL, err)
			}
			fetched[n] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrResourceFetch, err)
	}

	for n, f := range fetched {
		if f == nil {
			continue
		}
		if _, err := i.cache.Put(ctx, deps[n].URL, f.Body, f.ContentType); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrResourceFetch, deps[n].URL, err)
		}
	}

	annotate(ctx, i.cache, sc.Requires)
	annotate(ctx, i.cache, sc.Resources)
	return nil
}

func annotate(ctx context.Context, cache *resources.Cache, deps []types.Resource) {
	for n := range deps {
		deps[n].CacheKey = resources.Key(deps[n].URL)
		if e, err := cache.Get(ctx, deps[n].URL); err == nil {
			deps[n].MimeType = e.MimeType
		}
	}
}

// Update re-fetches a script from its update location and installs it if
// the version moved forward.
func (i *Installer) Update(ctx context.Context, scriptID string) (Result, error) {
	entry, err := i.store.Get(scriptID)
	if err != nil {
		return Result{}, err
	}
	sc := entry.Script
	url := firstNonEmpty(sc.UpdateURL, sc.DownloadURL, sc.SourceURL)
	if url == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoUpdateURL, sc.Key())
	}
	return i.Install(ctx, Request{URL: url}), nil
}

// Remove uninstalls a script
func (i *Installer) Remove(ctx context.Context, scriptID string) error {
	entry, err := i.store.Get(scriptID)
	if err != nil {
		return err
	}
	unlock := i.locks.lock(entry.Script.Key())
	defer unlock()

	removed, err := i.store.Remove(scriptID)
	if err != nil {
		return err
	}
	i.log.Info("Script removed", zap.String("script_id", scriptID), zap.String("script", removed.Script.Key().String()))

	ctx = context.WithoutCancel(ctx)
	if i.onRemove != nil {
		i.onRemove(ctx, removed.Script)
	}
	i.persist(ctx)
	return nil
}

// SetEnabled enables or disables a script
func (i *Installer) SetEnabled(ctx context.Context, scriptID string, enabled bool) (store.Entry, error) {
	entry, err := i.store.SetEnabled(scriptID, enabled)
	if err != nil {
		return store.Entry{}, err
	}
	i.log.Info("Script toggled", zap.String("script_id", scriptID), zap.Bool("enabled", enabled))
	i.persist(context.WithoutCancel(ctx))
	return entry, nil
}

func (i *Installer) persist(ctx context.Context) {
	if i.persister == nil {
		return
	}
	if err := i.persister.Save(ctx, i.store); err != nil {
		i.log.Error("Failed to persist script store", zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsFault reports whether err came from a failed fetch or parse rather
// than a policy decision.
func IsFault(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrResourceFetch) || errors.Is(err, metadata.ErrMalformedMetadata)
}
