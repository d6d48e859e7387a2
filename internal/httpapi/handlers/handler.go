package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/chat"
	"github.com/coo-agent/coo-backend/internal/evm"
	"github.com/coo-agent/coo-backend/internal/httpapi/middleware"
	"github.com/coo-agent/coo-backend/internal/social"
	"github.com/coo-agent/coo-backend/internal/wallet"
)

// Handler holds the domain services behind the HTTP surface. Construction
// and wiring live in cmd/server.
type Handler struct {
	Agent  *agentcfg.Service
	Chat   *chat.Service
	Wallet *wallet.Service
	EVM    *evm.Service
	Social *social.Service
	Poller *social.Poller

	Version string
}

func NewHandler(agent *agentcfg.Service, chatSvc *chat.Service, walletSvc *wallet.Service, evmSvc *evm.Service, socialSvc *social.Service, poller *social.Poller, version string) *Handler {
	return &Handler{
		Agent:   agent,
		Chat:    chatSvc,
		Wallet:  walletSvc,
		EVM:     evmSvc,
		Social:  socialSvc,
		Poller:  poller,
		Version: version,
	}
}

func principalFromContext(c *gin.Context) (string, bool) {
	return middleware.Principal(c)
}
