package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/ai"
	"github.com/coo-agent/coo-backend/internal/chat"
	"github.com/coo-agent/coo-backend/internal/config"
	"github.com/coo-agent/coo-backend/internal/evm"
	"github.com/coo-agent/coo-backend/internal/httpapi"
	"github.com/coo-agent/coo-backend/internal/httpapi/handlers"
	"github.com/coo-agent/coo-backend/internal/secrets"
	"github.com/coo-agent/coo-backend/internal/social"
	"github.com/coo-agent/coo-backend/internal/store"
	"github.com/coo-agent/coo-backend/internal/store/rabbitmq"
	"github.com/coo-agent/coo-backend/internal/store/redisstore"
	"github.com/coo-agent/coo-backend/internal/wallet"
)

const version = "1.0.0"

// insecure fixed key, only for local runs without SECRET_VAULT_KEY
const devVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&agentcfg.AgentConfig{}, &agentcfg.Character{}, &agentcfg.Secret{},
		&chat.Message{},
		&wallet.TransactionRecord{},
		&evm.ChainConfig{}, &evm.TransactionRecord{},
		&social.Settings{}, &social.InboxMessage{}, &social.ScheduledPost{}, &social.AutoPostConfig{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	vaultKey := cfg.VaultKey
	if vaultKey == "" {
		log.Printf("SECRET_VAULT_KEY not set, using insecure dev key")
		vaultKey = devVaultKey
	}
	vault, err := secrets.NewVault(vaultKey)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}

	ctx := context.Background()

	agentSvc := agentcfg.NewService(agentcfg.NewRepo(db), vault)
	if err := agentSvc.Bootstrap(ctx, cfg.AdminPrincipal, cfg.MaxConversationLength); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	registry := ai.NewRegistry()
	registry.Register(agentcfg.ProviderFallback, func(ctx context.Context) (ai.Provider, error) {
		ch, err := agentSvc.Character(ctx)
		if err != nil {
			return nil, err
		}
		return ai.NewFallbackProvider(ch.Name, ch.Bio), nil
	})
	registry.Register(agentcfg.ProviderOpenAI, func(ctx context.Context) (ai.Provider, error) {
		keyFunc := func(ctx context.Context) (string, error) {
			raw, err := agentSvc.OpenSecret(ctx, agentcfg.SecretOpenAIKey)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIModel, keyFunc, cfg.OutcallTimeout), nil
	})
	registry.Register(agentcfg.ProviderOnChain, func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOnChainProvider(cfg.OnChainLLMURL, cfg.OutcallTimeout)
	})

	chatSvc := chat.NewService(chat.NewRepo(db), agentSvc, registry)

	ledger := wallet.NewHTTPLedger(cfg.LedgerURL, cfg.OutcallTimeout)
	walletSvc := wallet.NewService(wallet.NewRepo(db), ledger, agentSvc, cfg.ServicePrincipal)

	signer := evm.NewHTTPSigner(cfg.SignerURL, cfg.OutcallTimeout)
	evmSvc := evm.NewService(evm.NewRepo(db), signer, evm.DialEthclient, agentSvc)

	limiter := redisstore.NewLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer limiter.Close()

	var queue social.PostEnqueuer
	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("rabbit unavailable, scheduled post delivery disabled: %v", err)
	} else {
		defer publisher.Close()
		queue = publisher
	}

	twitterClient := social.NewTwitterClient(func(ctx context.Context) (social.TwitterCredentials, error) {
		return loadTwitterCredentials(ctx, agentSvc)
	}, cfg.OutcallTimeout)
	discordClient := social.NewDiscordClient(func(ctx context.Context) (string, error) {
		raw, err := agentSvc.OpenSecret(ctx, agentcfg.SecretDiscordBotToken)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}, cfg.OutcallTimeout)

	socialRepo := social.NewRepo(db)
	poller := social.NewPoller(socialRepo, agentSvc, chatSvc, limiter, twitterClient, discordClient, queue)
	socialSvc := social.NewService(socialRepo, agentSvc, registry, limiter, twitterClient, discordClient, poller, queue)

	h := handlers.NewHandler(agentSvc, chatSvc, walletSvc, evmSvc, socialSvc, poller, version)
	router := httpapi.NewRouter(cfg, h)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Autonomous posting is its own slow loop; the tick is a no-op unless
	// enabled and due.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := socialSvc.AutoPostTick(runCtx); err != nil {
					log.Printf("auto-post tick: %v", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		log.Printf("server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func loadTwitterCredentials(ctx context.Context, agentSvc *agentcfg.Service) (social.TwitterCredentials, error) {
	raw, err := agentSvc.OpenSecret(ctx, agentcfg.SecretTwitterCredentials)
	if err != nil {
		return social.TwitterCredentials{}, err
	}
	var creds social.TwitterCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return social.TwitterCredentials{}, err
	}
	return creds, nil
}
