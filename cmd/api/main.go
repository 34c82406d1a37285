package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/marketplace-service/internal/api/http"
	"github.com/spec-kit/marketplace-service/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-service/internal/api/ws"
	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/observability"
	"github.com/spec-kit/marketplace-service/internal/persistence"
	"github.com/spec-kit/marketplace-service/internal/push"
	"github.com/spec-kit/marketplace-service/internal/realtime"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/service"
	"github.com/spec-kit/marketplace-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	mongo, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("failed to connect mongo", zap.Error(err))
	}
	defer mongo.Close(context.Background())

	metrics := observability.NewMetrics()

	pool := pg.Pool
	userRepo := repository.NewUserRepository(pool)
	moderatorRepo := repository.NewModeratorRepository(pool)
	onboardingRepo := repository.NewOnboardingRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	favoriteRepo := repository.NewFavoriteRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	historyRepo := repository.NewChatHistoryRepository(pool)

	messageRepo := repository.NewMessageRepository(pool)
	if cfg.Chat.MessageStore == "mongo" {
		messageRepo = repository.NewMongoMessageRepository(mongo.Database)
	}

	floor, err := ticketRepo.MaxNumber(ctx)
	if err != nil {
		logger.Fatal("failed to read ticket numbers", zap.Error(err))
	}
	ticketNumbers, err := redis.TicketSequence(ctx, floor)
	if err != nil {
		logger.Warn("ticket sequence not seeded; numbers collide until redis is reachable", zap.Error(err))
	}

	var provider push.Provider = push.NewNoopProvider(logger)
	if cfg.Notification.FirebaseCredentialsFile != "" {
		fcm, err := push.NewFCMProvider(ctx, cfg.Notification.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal("failed to init firebase messaging", zap.Error(err))
		}
		provider = fcm
	}

	pushPool := worker.NewPool(cfg.Notification.Workers, cfg.Notification.QueueSize, cfg.Notification.PushTimeout(), logger)

	dispatcher := events.NewInMemoryDispatcher(events.WithErrorHandler(func(event events.Event, err error) {
		logger.Warn("event handler failed",
			zap.String("event", string(event.Type)),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err))
	}))
	writePolicy := service.WritePolicy(cfg.Retry)

	hub := realtime.NewHub(logger)
	var emitter service.RoomEmitter = realtime.NewLocalEmitter(hub)
	if cfg.Chat.RedisRelay {
		relay := realtime.NewRedisRelay(redis.Client, hub, realtime.DefaultRelayChannel, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("chat relay stopped", zap.Error(err))
			}
		}()
		emitter = relay
	}

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		UserRepo:         userRepo,
		ModeratorRepo:    moderatorRepo,
		Resolver:         service.NewRecipientResolver(cfg.Notification.RecipientPolicy, moderatorRepo),
		Provider:         provider,
		Queue:            pushPool,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		WritePolicy:      writePolicy,
		Logger:           logger,
	})
	onboardingService := service.NewOnboardingService(service.OnboardingDependencies{
		RequestRepo:   onboardingRepo,
		UserRepo:      userRepo,
		ModeratorRepo: moderatorRepo,
		Dispatcher:    dispatcher,
		WritePolicy:   writePolicy,
		Logger:        logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		ProductRepo: productRepo,
		UserRepo:    userRepo,
		Numbers:     ticketNumbers,
		Dispatcher:  dispatcher,
		WritePolicy: writePolicy,
		Logger:      logger,
	})
	favoriteService := service.NewFavoriteService(service.FavoriteDependencies{
		FavoriteRepo: favoriteRepo,
		ProductRepo:  productRepo,
		UserRepo:     userRepo,
		Dispatcher:   dispatcher,
		WritePolicy:  writePolicy,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		MessageRepo: messageRepo,
		HistoryRepo: historyRepo,
		Emitter:     emitter,
		WritePolicy: writePolicy,
		Logger:      logger,
	})
	deviceService := service.NewDeviceService(userRepo, moderatorRepo, writePolicy)

	workerDone := worker.StartNotificationWorker(ctx, notificationService, pushPool, metrics, logger)

	if cfg.Reconciler.Enabled {
		interval := time.Duration(cfg.Reconciler.IntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		reconciler := service.NewReconciler(onboardingRepo, dispatcher, cfg.Reconciler.Grace(), logger)
		if err := reconciler.Start(ctx, interval); err != nil {
			logger.Fatal("failed to schedule onboarding reconciler", zap.Error(err))
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	authenticator := auth.NewAuthenticator(tokens, userRepo, moderatorRepo)

	dependencies := map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	}
	if mongo.Configured() {
		dependencies["mongo"] = mongo
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Onboarding:    handlers.NewOnboardingHandler(onboardingService),
		Tickets:       handlers.NewTicketsHandler(ticketService, favoriteService),
		Notifications: handlers.NewNotificationsHandler(notificationService, deviceService),
		Chat:          handlers.NewChatHandler(chatService),
		Authenticator: authenticator,
	})

	wsServer := ws.NewServer(ws.ServerDependencies{
		Authenticator:  authenticator,
		Chat:           chatService,
		Rooms:          hub,
		Logger:         logger,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
	})
	wsHTTP := &http.Server{
		Addr:              cfg.App.WSAddr(),
		Handler:           wsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("websocket server listening", zap.String("addr", wsHTTP.Addr))
		if err := wsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("websocket listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	if err := wsHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		pushPool.Stop()
		<-workerDone
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("push queue did not drain before shutdown deadline")
	}
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
