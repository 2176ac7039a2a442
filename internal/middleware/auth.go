// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authentication required")
			c.Abort()
			return
		}

		actor, ok := actorFromHeader(authHeader)
		if !ok {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		setActor(c, actor)
		c.Next()
	}
}

// RoleRequired must run after AuthRequired.
func RoleRequired(roles ...models.UserType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := utils.GetActorFromContext(c)
		if !ok {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "Your account type cannot perform this action")
		c.Abort()
	}
}

func AdminRequired() gin.HandlerFunc {
	return RoleRequired(models.UserTypeAdmin)
}

func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := actorFromHeader(c.GetHeader("Authorization")); ok {
			setActor(c, actor)
		}
		c.Next()
	}
}

// actorFromHeader extracts the actor from "Bearer <token>".
func actorFromHeader(authHeader string) (models.Actor, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return models.Actor{}, false
	}

	claims, err := utils.ValidateJWT(parts[1])
	if err != nil {
		return models.Actor{}, false
	}
	actor, err := claims.Actor()
	if err != nil {
		return models.Actor{}, false
	}
	return actor, true
}

func setActor(c *gin.Context, actor models.Actor) {
	c.Set(utils.ActorKey, actor)
	c.Set("user_id", actor.ID.String())
	c.Set("user_type", string(actor.Role))
}
