/*
Package monitoring provides Prometheus metrics for the userscript service.

Collectors live on a private registry so tests can build as many Metrics
values as they like. Metrics satisfies the recorder interfaces of the
installer, dispatcher and bridge.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "script")
	// ... fetch ...
	timer.Stop("success")
*/
package monitoring
