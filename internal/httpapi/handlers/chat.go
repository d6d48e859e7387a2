package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
)

type chatReq struct {
	Message string `json:"message" binding:"required"`
}

// SendChat routes one user turn through the configured provider. Not
// admin-gated: any authenticated caller may converse.
func (h *Handler) SendChat(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.Chat.Send(c.Request.Context(), principal, req.Message)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.OK(c, gin.H{"reply": reply})
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	msgs, err := h.Chat.History(c.Request.Context(), principal)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	count, err := h.Chat.HistoryCount(c.Request.Context(), principal)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.OK(c, gin.H{"messages": msgs, "count": count})
}

func (h *Handler) ClearChatHistory(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Chat.Clear(c.Request.Context(), principal); err != nil {
		common.FailErr(c, err)
		return
	}

	common.OK(c, nil)
}
