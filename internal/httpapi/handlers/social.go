package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/social"
)

type configureTwitterReq struct {
	APIKey            string `json:"api_key" binding:"required"`
	APISecret         string `json:"api_secret" binding:"required"`
	AccessToken       string `json:"access_token" binding:"required"`
	AccessTokenSecret string `json:"access_token_secret" binding:"required"`
}

func (h *Handler) ConfigureTwitter(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req configureTwitterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.Social.ConfigureTwitter(c.Request.Context(), principal, social.TwitterCredentials{
		APIKey:            req.APIKey,
		APISecret:         req.APISecret,
		AccessToken:       req.AccessToken,
		AccessTokenSecret: req.AccessTokenSecret,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type configureDiscordReq struct {
	BotToken   string   `json:"bot_token"`
	WebhookURL string   `json:"webhook_url"`
	ChannelIDs []string `json:"channel_ids"`
}

func (h *Handler) ConfigureDiscord(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req configureDiscordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.Social.ConfigureDiscord(c.Request.Context(), principal, req.BotToken, req.WebhookURL, req.ChannelIDs)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type platformsReq struct {
	Platforms []string `json:"platforms"`
}

func (h *Handler) SetEnabledPlatforms(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req platformsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Social.SetEnabledPlatforms(c.Request.Context(), principal, req.Platforms); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type autoReplyReq struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) SetAutoReply(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req autoReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Social.SetAutoReply(c.Request.Context(), principal, req.Enabled); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type startPollingReq struct {
	IntervalSeconds int64 `json:"interval_seconds" binding:"required"`
}

func (h *Handler) StartPolling(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req startPollingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.Poller.Start(c.Request.Context(), principal, time.Duration(req.IntervalSeconds)*time.Second)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) StopPolling(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Poller.Stop(c.Request.Context(), principal); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) TriggerPoll(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Poller.Trigger(c.Request.Context(), principal); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type postNowReq struct {
	Platform string `json:"platform" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

func (h *Handler) PostNow(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req postNowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	id, err := h.Social.PostNow(c.Request.Context(), principal, req.Platform, req.Content)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"post_id": id})
}

func (h *Handler) GetSocialStatus(c *gin.Context) {
	status, err := h.Social.Status(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, status)
}

func (h *Handler) GetSocialInbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.Social.Inbox(c.Request.Context(), limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type schedulePostReq struct {
	Platform    string    `json:"platform" binding:"required"`
	Content     string    `json:"content" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	ReplyToID   string    `json:"reply_to_id"`
	ChannelID   string    `json:"channel_id"`
}

func (h *Handler) SchedulePost(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req schedulePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	id, err := h.Social.SchedulePost(c.Request.Context(), principal, req.Platform, req.Content, req.ScheduledAt, req.ReplyToID, req.ChannelID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"post_id": id})
}

func (h *Handler) CancelScheduledPost(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Social.CancelScheduledPost(c.Request.Context(), principal, c.Param("id")); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListScheduledPosts(c *gin.Context) {
	posts, err := h.Social.ScheduledPosts(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"posts": posts})
}

type startAutoPostReq struct {
	IntervalSeconds int64    `json:"interval_seconds" binding:"required"`
	Topics          []string `json:"topics"`
}

func (h *Handler) StartAutoPosting(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req startAutoPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Social.StartAutoPosting(c.Request.Context(), principal, req.IntervalSeconds, req.Topics); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) StopAutoPosting(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Social.StopAutoPosting(c.Request.Context(), principal); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) TriggerAutoPost(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id, err := h.Social.TriggerAutoPost(c.Request.Context(), principal)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"post_id": id})
}

func (h *Handler) GetAutoPostConfig(c *gin.Context) {
	cfg, err := h.Social.AutoPostConfig(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, cfg)
}
