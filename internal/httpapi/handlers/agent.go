package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/common"
)

func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.Agent.Config(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, cfg)
}

type setProviderReq struct {
	Provider string `json:"provider" binding:"required"`
}

func (h *Handler) SetProvider(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req setProviderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Agent.SetProvider(c.Request.Context(), principal, req.Provider); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"provider": req.Provider})
}

func (h *Handler) GetCharacter(c *gin.Context) {
	ch, err := h.Agent.Character(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, ch)
}

type updateCharacterReq struct {
	Name         string   `json:"name" binding:"required"`
	SystemPrompt string   `json:"system_prompt" binding:"required"`
	Bio          []string `json:"bio"`
	Style        []string `json:"style"`
}

func (h *Handler) UpdateCharacter(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateCharacterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.Agent.UpdateCharacter(c.Request.Context(), principal, &agentcfg.Character{
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		Bio:          req.Bio,
		Style:        req.Style,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type storeAPIKeyReq struct {
	APIKey string `json:"api_key" binding:"required"`
}

// StoreAPIKey seals the OpenAI key into the vault. The key is write-only:
// no endpoint ever returns it.
func (h *Handler) StoreAPIKey(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req storeAPIKeyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Agent.StoreSecret(c.Request.Context(), principal, agentcfg.SecretOpenAIKey, []byte(req.APIKey)); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}
