package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/service"
)

// unmatchedRoute labels requests gin could not route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template. Requests for the
// excluded paths, typically the scrape endpoint itself, are not observed.
func Metrics(metricsSvc *service.MetricsService, exclude ...string) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
