package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	started  time.Time
	cacheHit *bool
}

// WithResponseMeta starts collecting envelope metadata for the request.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now()})
		c.Next()
	}
}

// SetCacheHit records whether the response body was served from the view cache. It
// starts collecting on routes without WithResponseMeta.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	meta := metaFrom(c)
	if meta == nil {
		meta = &responseMeta{started: time.Now()}
		c.Set(responseMetaKey, meta)
	}
	meta.cacheHit = &hit
}

// ExtractMeta renders the collected metadata for the envelope, or nil when nothing
// was collected for the request.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaFrom(c)
	if meta == nil {
		return nil
	}
	out := map[string]interface{}{
		"processing_time_ms": time.Since(meta.started).Milliseconds(),
	}
	if meta.cacheHit != nil {
		out["cache_hit"] = *meta.cacheHit
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaFrom(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	meta, _ := value.(*responseMeta)
	return meta
}
