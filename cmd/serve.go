package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/api"
	"github.com/DurbeKK/maid-tg-bot/internal/auth"
	"github.com/DurbeKK/maid-tg-bot/internal/config"
	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/notify"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/internal/service"
	"github.com/DurbeKK/maid-tg-bot/internal/timer"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the conflict timers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if cfg.TokenSecret == "" {
		return errors.New("TOKEN_AUTH_SECRET is required")
	}
	auth.TokenSecretKey = cfg.TokenSecret

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting application", zap.String("version", version))

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping database")
	}
	if err = db.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "migrate")
	}

	log.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	teamRepo := repository.NewPgxTeamRepository(pool)
	userRepo := repository.NewPgxUserRepository(pool)
	queueRepo := repository.NewPgxQueueRepository(pool)
	conflictRepo := repository.NewPgxConflictRepository(pool)
	timerRepo := repository.NewPgxTimerRepository(pool)
	notificationRepo := repository.NewPgxNotificationRepository(pool)

	outbox := notify.NewOutbox(notificationRepo)
	timers := timer.NewService(timerRepo, timer.Config{
		SweepInterval:   cfg.TimerSweepInterval,
		RetryMaxElapsed: cfg.TimerRetryMaxElapsed,
	})

	team := service.NewTeamService(transactor).WithTeamRepo(teamRepo).WithUserRepo(userRepo)
	user := service.NewUserService().WithUserRepo(userRepo)
	queue := service.NewQueueService(transactor).
		WithTeamRepo(teamRepo).
		WithUserRepo(userRepo).
		WithQueueRepo(queueRepo).
		WithConflictRepo(conflictRepo)
	conflict := service.NewConflictService(transactor, cfg.ConflictHorizon).
		WithTeamRepo(teamRepo).
		WithUserRepo(userRepo).
		WithQueueRepo(queueRepo).
		WithConflictRepo(conflictRepo).
		WithTimers(timers).
		WithSink(outbox)
	reorder := service.NewReorderService(transactor, cfg.ReorderSessionTTL).
		WithTeamRepo(teamRepo).
		WithQueueRepo(queueRepo)

	if err = timers.Start(ctx, conflict.HandleTimer); err != nil {
		return errors.Wrap(err, "start timers")
	}
	defer timers.Stop()

	e := echo.New()
	e.HideBanner = true

	handler := api.NewHandler(log).
		WithHealthChecker(api.MustNewHealthChecker(version, api.PostgresCheck(pool))).
		WithTeamService(team).
		WithUserService(user).
		WithQueueService(queue).
		WithConflictService(conflict).
		WithReorderService(reorder).
		WithNotifications(outbox)

	handler.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if serr := e.Shutdown(shutdownCtx); serr != nil {
		log.Error("server shutdown error", zap.Error(serr))
	}

	log.Info("server stopped")
	return err
}
