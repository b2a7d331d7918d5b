package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"insightdash/internal/gateway"
	"insightdash/internal/session"
	"insightdash/internal/usecases"
)

// OpenConversation starts a messaging session with the phone number,
// superseding any conversation that was open before. The transcript and
// connection state come back so the chat view can render immediately.
func (h *Handler) OpenConversation(c *gin.Context) {
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), SessionFrom(c), phone)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			// Superseded by a newer open before history resolved.
			c.JSON(http.StatusConflict, gin.H{"error": "Conversation superseded"})
			return
		}
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		// History failed but the session is open; the client may retry.
		c.JSON(http.StatusOK, gin.H{
			"phone":    phone,
			"state":    s.State(),
			"messages": s.Messages(),
			"error":    "Failed to load message history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phone":    phone,
		"state":    s.State(),
		"messages": s.Messages(),
	})
}

func (h *Handler) ConversationMessages(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("phone"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No open conversation for this number"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phone":    s.Phone(),
		"state":    s.State(),
		"messages": s.Messages(),
	})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.Message = SanitizeString(req.Message)
	if !ValidateLength(req.Message, 1, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message must be 1-4096 characters"})
		return
	}

	msg, err := h.sessions.Send(c.Request.Context(), c.Param("phone"), req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": msg})
	case errors.Is(err, session.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message must not be blank"})
	case errors.Is(err, session.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "No open conversation for this number"})
	case errors.Is(err, session.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Sending too fast, slow down"})
	case errors.Is(err, session.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Conversation was closed"})
	case errors.Is(err, gateway.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
	default:
		// The message stays in the transcript as failed; report it as such.
		c.JSON(http.StatusBadGateway, gin.H{"message": msg, "error": "Send failed"})
	}
}

func (h *Handler) CloseConversation(c *gin.Context) {
	if err := h.sessions.Close(c.Param("phone")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No open conversation for this number"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// SendToSegment blasts a filled template to every customer in a cohort.
func (h *Handler) SendToSegment(c *gin.Context) {
	var req struct {
		Metric   string   `json:"metric"`
		Cohort   string   `json:"cohort"`
		Template string   `json:"template"`
		Fields   []string `json:"fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.Template = SanitizeString(req.Template)
	if !ValidateLength(req.Template, 1, MaxTemplateLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Template must not be empty"})
		return
	}

	sc := SessionFrom(c)
	rows, err := h.analysis.SegmentRows(c.Request.Context(), sc, req.Metric, req.Cohort)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, gin.H{"results": []usecases.SendResult{}, "sent": 0})
		return
	}

	results := h.segments.SendToSegment(c.Request.Context(), sc, rows, req.Template, req.Fields)
	sent := 0
	for _, res := range results {
		if res.Sent {
			sent++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "sent": sent})
}
