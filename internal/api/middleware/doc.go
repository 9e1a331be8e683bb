// Package middleware provides the gin middleware used by the status API.
//
//   - CORS: cross-origin access for browser dashboards
//   - RateLimit: per-client token bucket with idle client eviction
//   - GlobalRateLimit: one bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.HTTP)))
//	router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
package middleware
