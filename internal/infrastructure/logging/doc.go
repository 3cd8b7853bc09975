// Package logging wraps uber/zap for the userscript server.
//
// Production loggers write JSON; development loggers write colored console
// lines. Components take a *Logger and derive a named child with Component,
// so every line carries "component" alongside fields such as script_id,
// pattern or url. A nil *Logger is valid everywhere through OrNop.
//
//	log := logging.NewDefault().Component("installer")
//	log.Warn("resource fetch failed", zap.String("script_id", id), zap.Error(err))
package logging
