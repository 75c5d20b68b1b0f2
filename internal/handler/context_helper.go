package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/middleware"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

// callerAddress returns the authenticated account or writes a 401.
func callerAddress(c *gin.Context) (string, bool) {
	claims := middleware.Claims(c)
	if claims == nil || claims.Address == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.Address, true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be an unsigned integer").WithDetails(name, raw))
		return 0, false
	}
	return value, true
}

func courseIDParam(c *gin.Context) (uint64, bool) {
	return uintParam(c, "id")
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// respondCached writes data with the cache hit flag in the response meta.
func respondCached(c *gin.Context, data interface{}, cacheHit bool) {
	middleware.SetCacheHit(c, cacheHit)
	response.OK(c, data, middleware.ExtractMeta(c))
}
