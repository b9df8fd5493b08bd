package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/cache"
	redisCache "github.com/aniladanir/guest-inbox-webhook/internal/cache/redis"
	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	httpHandler "github.com/aniladanir/guest-inbox-webhook/internal/handler/http"
	"github.com/aniladanir/guest-inbox-webhook/internal/persistant/postgresql"
	conversationRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/conversation"
	hostRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/host"
	messageRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/message"
	"github.com/aniladanir/guest-inbox-webhook/internal/service"
	"github.com/aniladanir/guest-inbox-webhook/internal/whatsapp"
	"github.com/aniladanir/guest-inbox-webhook/internal/window"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path")
	envFile    = flag.String("env", ".env", "optional env file path")
)

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// parse flags
	flag.Parse()

	// load env file before config so overrides apply
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load env file: %v", err)
	}

	// parse config
	config, err := ReadConfigJson(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if config.AppSecret == "" {
		logger.Warn("app secret is not configured, every webhook delivery will be rejected")
	}

	// initialize external dependencies
	db, rCache, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}

	// seed hosts for local setups
	if err := seedHosts(db, config.SeedHosts); err != nil {
		log.Fatalf("failed to seed hosts: %v", err)
	}

	// init repositories
	hosts := hostRepo.NewHostRepository(db)
	conversations := conversationRepo.NewConversationRepository(db)
	messages := messageRepo.NewMessageRepository(db)

	// init whatsapp client
	waClient, err := whatsapp.NewClient(
		config.GraphAPIURL,
		&config.TemplateMaxRetry,
		logger.With(slog.String("component", "whatsappClient")),
	)
	if err != nil {
		log.Fatalf("failed to initiate whatsapp client: %v", err)
	}

	// the ingestor treats a nil cache as disabled
	var seen cache.Cache
	if rCache != nil {
		seen = rCache
	}

	// init services
	ingestor := service.NewMessageIngestor(
		conversations,
		messages,
		waClient,
		seen,
		window.NewPolicy(),
		logger.With(slog.String("component", "messageIngestor")),
		service.IngestorConfig{
			ExpiryTemplate:   config.ExpiryTemplateName,
			TemplateLanguage: config.ExpiryTemplateLanguage,
			DedupeTTL:        config.DedupeTTL,
		},
	)
	dispatcher := service.NewWebhookDispatcher(
		hosts,
		ingestor,
		logger.With(slog.String("component", "webhookDispatcher")),
		service.DispatcherConfig{
			AppSecret:    config.AppSecret,
			BatchTimeout: config.BatchTimeout,
		},
	)

	// init http handler
	httpHandler := httpHandler.NewHttpHandler(
		fmt.Sprintf(":%d", config.HttpPort),
		dispatcher,
		logger.With(slog.String("component", "httpHandler")),
	)

	wg := sync.WaitGroup{}
	// run http handler
	wg.Go(func() {
		logger.Info("http server listening", "port", config.HttpPort)
		if err := httpHandler.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		if err := httpHandler.Shutdown(shutDownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err.Error())
		}
		if rCache != nil {
			rCache.Close()
		}
		postgresql.Close(db)
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (db *gorm.DB, rCache *redisCache.RedisCache, err error) {
	// initialize database
	db, err = postgresql.Initialize(config.DbConnString, domain.Models())
	if err != nil {
		return
	}

	// initialize cache, optional
	if config.RedisAddr == "" {
		return
	}
	rCache, err = redisCache.NewRedisCache(ctx, config.RedisAddr)

	return
}

func seedHosts(db *gorm.DB, seeds []SeedHost) error {
	if len(seeds) == 0 {
		return nil
	}

	var hostCount int64
	if err := db.Model(&domain.Host{}).Count(&hostCount).Error; err != nil {
		return err
	}
	if hostCount > 0 {
		return nil
	}

	hosts := make([]domain.Host, 0, len(seeds))
	for _, s := range seeds {
		hosts = append(hosts, domain.Host{
			Email:            s.Email,
			PropertyID:       s.PropertyID,
			PhoneNumberID:    s.PhoneNumberID,
			AccessToken:      s.AccessToken,
			VerifyToken:      s.VerifyToken,
			APIVersion:       s.APIVersion,
			ExpiryTemplate:   s.ExpiryTemplate,
			TemplateLanguage: s.TemplateLanguage,
			Active:           true,
		})
	}

	return db.Create(&hosts).Error
}
