// README: Actor identity middleware; trusts the upstream auth gateway.
package middleware

import "github.com/gin-gonic/gin"

const (
	ActorIDKey   = "actor_id"
	ActorRoleKey = "actor_role"
)

// Actor lifts the authenticated identity set by the upstream gateway into
// the request context. Authentication itself happens outside this service;
// these headers arrive already verified.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ActorIDKey, c.GetHeader("X-Actor-ID"))
		c.Set(ActorRoleKey, c.GetHeader("X-Actor-Role"))
		c.Next()
	}
}
