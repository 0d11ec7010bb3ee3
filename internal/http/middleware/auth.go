package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/identity"
)

type AuthMiddleware struct {
	log      *logger.Logger
	idp      identity.Provider
	userRepo repos.UserRepo
	enforce  bool
}

func NewAuthMiddleware(log *logger.Logger, idp identity.Provider, userRepo repos.UserRepo, enforce bool) *AuthMiddleware {
	middlewareLogger := log.With("middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLogger, idp: idp, userRepo: userRepo, enforce: enforce}
}

// RequireAuth verifies a presented token and attaches the caller. Without a
// token the request is rejected in enforce mode and passed through anonymously
// otherwise. A presented but invalid token is always rejected.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			if am.enforce {
				response.RespondAPIError(c, apierr.Unauthorized("missing bearer token"))
				c.Abort()
				return
			}
			c.Next()
			return
		}

		ctx := c.Request.Context()
		uid, err := am.idp.Verify(ctx, tokenString)
		if err != nil {
			am.log.Debug("Token rejected", "error", err)
			response.RespondAPIError(c, apierr.Unauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		rd := &ctxutil.RequestData{TokenString: tokenString, UserID: uid}
		if am.userRepo != nil {
			profile, err := am.userRepo.GetByID(ctx, nil, uid)
			if err != nil {
				response.RespondAPIError(c, apierr.Upstream("load profile", err))
				c.Abort()
				return
			}
			if profile != nil {
				rd.Role = profile.Role
			}
		}
		if rd.UserID == uuid.Nil {
			response.RespondAPIError(c, apierr.Unauthorized("invalid token subject"))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(ctx, rd))
		c.Next()
	}
}

// EventSource cannot set headers, so ?token= is accepted as well.
func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
