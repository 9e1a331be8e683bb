/*
Package monitoring collects Prometheus metrics for the engine and the
status API.

Metrics live on a private registry so several managers (and tests) can
coexist in one process. Every recording method is safe on a nil *Metrics,
which lets engine components run without monitoring.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.SetFPS("world", 29.8)
	metrics.IncRouted("eye0", "world")
*/
package monitoring
