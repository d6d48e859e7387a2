package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/config"
	"github.com/coo-agent/coo-backend/internal/secrets"
	"github.com/coo-agent/coo-backend/internal/social"
	"github.com/coo-agent/coo-backend/internal/store"
	"github.com/coo-agent/coo-backend/internal/store/rabbitmq"
	"github.com/coo-agent/coo-backend/internal/store/redisstore"
)

const maxDeliveryAttempts = 3

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

type deliverer struct {
	repo    *social.Repo
	twitter *social.TwitterClient
	discord *social.DiscordClient
	limiter *redisstore.Limiter
	retryCh *amqp.Channel
	retryQ  string
}

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	vaultKey := cfg.VaultKey
	if vaultKey == "" {
		log.Fatalf("SECRET_VAULT_KEY is required for the worker")
	}
	vault, err := secrets.NewVault(vaultKey)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}
	agentSvc := agentcfg.NewService(agentcfg.NewRepo(db), vault)

	limiter := redisstore.NewLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer limiter.Close()

	twitterClient := social.NewTwitterClient(func(ctx context.Context) (social.TwitterCredentials, error) {
		raw, err := agentSvc.OpenSecret(ctx, agentcfg.SecretTwitterCredentials)
		if err != nil {
			return social.TwitterCredentials{}, err
		}
		var creds social.TwitterCredentials
		if err := json.Unmarshal(raw, &creds); err != nil {
			return social.TwitterCredentials{}, err
		}
		return creds, nil
	}, cfg.OutcallTimeout)
	discordClient := social.NewDiscordClient(func(ctx context.Context) (string, error) {
		raw, err := agentSvc.OpenSecret(ctx, agentcfg.SecretDiscordBotToken)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}, cfg.OutcallTimeout)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	d := &deliverer{
		repo:    social.NewRepo(db),
		twitter: twitterClient,
		discord: discordClient,
		limiter: limiter,
		retryCh: ch,
		retryQ:  cfg.RabbitQueue + ".retry",
	}

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for delivery := range jobs {
				var m rabbitmq.PostJob
				if err := json.Unmarshal(delivery.Body, &m); err != nil || m.PostID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = delivery.Nack(false, false)
					continue
				}

				start := time.Now()
				retry, err := d.handlePost(ctx, m.PostID)
				if err != nil {
					log.Printf("worker=%d post %s failed cost=%s retry=%v err=%v",
						workerID, m.PostID, time.Since(start), retry, err)
					if retry {
						if pubErr := d.publishRetry(ctx, delivery.Body); pubErr != nil {
							log.Printf("worker=%d retry publish failed post=%s err=%v", workerID, m.PostID, pubErr)
							_ = delivery.Nack(false, false)
							continue
						}
						_ = delivery.Ack(false)
					} else {
						// Exhausted or permanent; reject to the DLQ.
						_ = delivery.Nack(false, false)
					}
					continue
				}

				if err := delivery.Ack(false); err != nil {
					log.Printf("worker=%d ack failed post=%s err=%v", workerID, m.PostID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case delivery, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- delivery
		}
	}
}

func (d *deliverer) publishRetry(ctx context.Context, body []byte) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.retryCh.PublishWithContext(cctx, "", d.retryQ, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// handlePost delivers one scheduled post. The bool reports whether the
// failure is worth another attempt through the retry queue.
func (d *deliverer) handlePost(ctx context.Context, postID string) (bool, error) {
	post, err := d.repo.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Cancelled between enqueue and delivery.
			return false, nil
		}
		return true, err
	}
	if post.Status == social.PostStatusCompleted || post.Status == social.PostStatusFailed {
		// Redelivered after completion; nothing to do.
		return false, nil
	}

	if err := d.repo.UpdatePostStatus(ctx, post.ID, social.PostStatusProcessing, nil); err != nil {
		return true, err
	}

	resultID, err := d.deliver(ctx, post)
	if err != nil {
		if post.RetryCount+1 < maxDeliveryAttempts {
			if incErr := d.repo.IncrementRetry(ctx, post.ID); incErr != nil {
				return false, incErr
			}
			if stErr := d.repo.UpdatePostStatus(ctx, post.ID, social.PostStatusQueued, nil); stErr != nil {
				return false, stErr
			}
			return true, err
		}
		if stErr := d.repo.UpdatePostStatus(ctx, post.ID, social.PostStatusFailed, map[string]any{
			"error": err.Error(),
		}); stErr != nil {
			return false, stErr
		}
		return false, err
	}

	if err := d.repo.UpdatePostStatus(ctx, post.ID, social.PostStatusCompleted, map[string]any{
		"result_id": resultID,
	}); err != nil {
		return false, err
	}
	return false, nil
}

func (d *deliverer) deliver(ctx context.Context, post *social.ScheduledPost) (string, error) {
	switch post.Platform {
	case social.PlatformTwitter:
		if err := d.limiter.Allow(ctx, "social:twitter", social.TwitterHourlyLimit, time.Hour); err != nil {
			return "", err
		}
		return d.twitter.Post(ctx, post.Content, post.ReplyToID)

	case social.PlatformDiscord:
		if err := d.limiter.Allow(ctx, "social:discord", social.DiscordHourlyLimit, time.Hour); err != nil {
			return "", err
		}
		if post.ChannelID != "" {
			return d.discord.PostMessage(ctx, post.ChannelID, post.Content)
		}
		settings, err := d.repo.GetSettings(ctx)
		if err != nil {
			return "", err
		}
		if len(settings.DiscordChannelIDs) > 0 {
			return d.discord.PostMessage(ctx, settings.DiscordChannelIDs[0], post.Content)
		}
		if settings.DiscordWebhookURL != "" {
			if err := d.discord.PostWebhook(ctx, settings.DiscordWebhookURL, post.Content); err != nil {
				return "", err
			}
			return "webhook", nil
		}
		return "", errors.New("no channel or webhook configured")
	}
	return "", errors.New("unknown platform " + post.Platform)
}
