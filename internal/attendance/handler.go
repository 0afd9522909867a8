package attendance

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/pkg/response"
)

// Handler handles GET /sessions/:id/attendance.
type Handler struct {
	repo *Repository
}

// NewHandler creates an attendance handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListBySession handles GET /sessions/:id/attendance (host: join/leave log with watch time).
func (h *Handler) ListBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, gin.H{"attendance": list})
}
