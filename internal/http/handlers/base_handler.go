// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lifeline/internal/http/middleware"
	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// writeDomainError maps module sentinel errors onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, request.ErrBadRequest), errors.Is(err, billing.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, request.ErrNotFound), errors.Is(err, billing.ErrNotFound), errors.Is(err, responder.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, request.ErrInvalidState),
		errors.Is(err, request.ErrConflict),
		errors.Is(err, billing.ErrConflict),
		errors.Is(err, billing.ErrUnissuedDeliverable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// actor pulls the authenticated identity from the middleware context.
func actor(c *gin.Context) (types.ID, string) {
	return types.ID(c.GetString(middleware.ActorIDKey)), c.GetString(middleware.ActorRoleKey)
}
