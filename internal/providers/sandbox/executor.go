package sandbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
)

// Executor runs the injections selected for one navigation
type Executor struct {
	pool   *Pool
	bridge *bridge.Bridge
	log    *logging.Logger
}

// NewExecutor creates an executor
func NewExecutor(pool *Pool, b *bridge.Bridge, log *logging.Logger) *Executor {
	return &Executor{pool: pool, bridge: b, log: logging.OrNop(log).Component("sandbox")}
}

// Run executes injections strictly one after another, in order. A script
// that throws or times out is reported in its Result and does not stop the
// scripts after it. Run stops early only when ctx is done.
func (e *Executor) Run(ctx context.Context, injections []dispatch.Injection) []*Result {
	results := make([]*Result, 0, len(injections))
	for _, inj := range injections {
		if ctx.Err() != nil {
			break
		}
		h := e.bridge.Handle(inj.Script)
		res, err := e.pool.Run(ctx, h, inj)
		if res == nil {
			res = &Result{ScriptID: inj.Script.ID, Name: inj.Script.Name, Error: err}
		}
		if err != nil {
			e.log.Warn("Script failed",
				zap.String("script_id", inj.Script.ID),
				zap.String("script", inj.Script.Name),
				zap.Error(err))
		} else {
			e.log.Debug("Script finished",
				zap.String("script_id", inj.Script.ID),
				zap.Duration("duration", res.Duration),
				zap.Int("turns", res.Turns))
		}
		results = append(results, res)
	}
	return results
}
