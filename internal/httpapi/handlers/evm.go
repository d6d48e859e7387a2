package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/evm"
)

type configureChainReq struct {
	ChainID      uint64 `json:"chain_id" binding:"required"`
	ChainName    string `json:"chain_name" binding:"required"`
	RPCURL       string `json:"rpc_url" binding:"required"`
	NativeSymbol string `json:"native_symbol" binding:"required"`
	Decimals     uint8  `json:"decimals"`
}

func (h *Handler) ConfigureEVMChain(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req configureChainReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	decimals := req.Decimals
	if decimals == 0 {
		decimals = 18
	}

	err := h.EVM.ConfigureChain(c.Request.Context(), principal, evm.ChainConfig{
		ChainID:      req.ChainID,
		ChainName:    req.ChainName,
		RPCURL:       req.RPCURL,
		NativeSymbol: req.NativeSymbol,
		Decimals:     decimals,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListEVMChains(c *gin.Context) {
	chains, err := h.EVM.Chains(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"chains": chains})
}

func chainIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chain_id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid chain_id")
		return 0, false
	}
	return id, true
}

func (h *Handler) GetEVMBalance(c *gin.Context) {
	chainID, okk := chainIDParam(c)
	if !okk {
		return
	}

	balance, err := h.EVM.Balance(c.Request.Context(), chainID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"chain_id": chainID, "balance_wei": balance})
}

func (h *Handler) GetEVMWalletInfo(c *gin.Context) {
	chainID, okk := chainIDParam(c)
	if !okk {
		return
	}

	info, err := h.EVM.WalletInfo(c.Request.Context(), chainID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, info)
}

type sendEVMReq struct {
	ChainID   uint64 `json:"chain_id" binding:"required"`
	To        string `json:"to" binding:"required"`
	AmountWei string `json:"amount_wei" binding:"required"`
}

func (h *Handler) SendEVMNative(c *gin.Context) {
	principal, okk := principalFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendEVMReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	txHash, err := h.EVM.SendNative(c.Request.Context(), principal, req.ChainID, req.To, req.AmountWei)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"tx_hash": txHash})
}

func (h *Handler) GetEVMHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.EVM.History(c.Request.Context(), limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"transactions": records})
}
