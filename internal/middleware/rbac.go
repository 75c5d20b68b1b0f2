package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type roleChecker interface {
	HasRole(ctx context.Context, role models.Role, account string) (*models.RoleMembership, error)
}

// RequireRole admits callers holding any of roles. Membership is read from the role
// registry on every request, so grants and revocations apply immediately.
func RequireRole(checker roleChecker, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		for _, role := range roles {
			membership, err := checker.HasRole(c.Request.Context(), role, claims.Address)
			if err != nil {
				response.Error(c, err)
				return
			}
			if membership.Member {
				c.Next()
				return
			}
		}

		denied := appErrors.Clone(appErrors.ErrRoleRequired, "")
		if len(roles) > 0 {
			denied = denied.WithDetails("role", string(roles[0]), "account", claims.Address)
		}
		response.Error(c, denied)
	}
}
