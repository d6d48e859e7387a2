package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
)

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "healthy"})
}

func (h *Handler) GetVersion(c *gin.Context) {
	common.OK(c, gin.H{"version": h.Version})
}
