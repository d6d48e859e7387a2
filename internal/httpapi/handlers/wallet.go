package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
)

func (h *Handler) GetWalletBalance(c *gin.Context) {
	balance, err := h.Wallet.CheckBalance(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"e8s": balance})
}

func (h *Handler) GetWalletStatus(c *gin.Context) {
	info, err := h.Wallet.Status(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, info)
}

type sendICPReq struct {
	To        string `json:"to" binding:"required"`
	AmountE8s uint64 `json:"amount_e8s" binding:"required"`
	Memo      uint64 `json:"memo"`
}

func (h *Handler) SendICP(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendICPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	blockHeight, err := h.Wallet.Send(c.Request.Context(), principal, req.To, req.AmountE8s, req.Memo)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"block_height": blockHeight})
}

func (h *Handler) GetWalletHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.Wallet.History(c.Request.Context(), limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	count, err := h.Wallet.RecordCount(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"transactions": records, "count": count})
}
