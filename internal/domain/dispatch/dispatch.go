// Package dispatch selects the scripts to inject for a navigation.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// ResolvedResource is a required file with its cached body
type ResolvedResource struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Body     string `json:"body"`
}

// Injection is one script to run, with its @require bodies in declaration
// order.
type Injection struct {
	Script    *types.Script      `json:"script"`
	Resources []ResolvedResource `json:"resources"`
}

// Recorder receives dispatch metrics
type Recorder interface {
	RecordDispatch(phase string, selected int, duration time.Duration)
}

// Dispatcher answers "which scripts run here, now"
type Dispatcher struct {
	store    *store.Store
	cache    *resources.Cache
	recorder Recorder
	log      *logging.Logger
}

// New creates a dispatcher. recorder may be nil.
func New(st *store.Store, cache *resources.Cache, recorder Recorder, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		cache:    cache,
		recorder: recorder,
		log:      logging.OrNop(log).Component("dispatch"),
	}
}

// SelectForNavigation returns the enabled scripts whose run-at phase is
// phase and whose rules match url, in install order. It never fails: a
// script whose required files are missing from the cache is left out.
func (d *Dispatcher) SelectForNavigation(ctx context.Context, url string, phase types.RunAt) []Injection {
	start := time.Now()
	if !phase.Valid() {
		phase = types.RunAtDocumentIdle
	}

	out := make([]Injection, 0)
	for _, e := range d.store.ListEnabled() {
		if e.Script.RunAt != phase {
			continue
		}
		matched := e.Rules.Matches(url)
		for _, raw := range e.Rules.TimedOut() {
			d.log.Warn("Pattern timed out, treated as no match",
				zap.String("script_id", e.Script.ID),
				zap.String("pattern", raw),
				zap.String("url", url))
		}
		if !matched {
			continue
		}
		inj, ok := d.resolve(ctx, e.Script)
		if !ok {
			continue
		}
		out = append(out, inj)
	}

	if d.recorder != nil {
		d.recorder.RecordDispatch(string(phase), len(out), time.Since(start))
	}
	return out
}

func (d *Dispatcher) resolve(ctx context.Context, sc *types.Script) (Injection, bool) {
	inj := Injection{Script: sc, Resources: make([]ResolvedResource, 0, len(sc.Requires))}
	for _, req := range sc.Requires {
		e, err := d.cache.Get(ctx, req.URL)
		if err != nil {
			d.log.Warn("Skipping script with missing resource",
				zap.String("script_id", sc.ID),
				zap.String("resource", req.URL),
				zap.Error(err))
			return Injection{}, false
		}
		inj.Resources = append(inj.Resources, ResolvedResource{URL: req.URL, MimeType: e.MimeType, Body: string(e.Data)})
	}
	return inj, true
}
