// Package app wires the store, locks, notification channels and scheduler
// shared by the api-server and scheduler binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/api"
	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/db"
	"github.com/hackgods/therapy-booking/internal/metrics"
	"github.com/hackgods/therapy-booking/internal/notify"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
	"github.com/hackgods/therapy-booking/internal/scheduler"
)

type App struct {
	Config       config.Config
	Logger       zerolog.Logger
	Repo         booking.Repository
	Service      *booking.Service
	Renderer     *notify.Renderer
	Dispatcher   *notify.Dispatcher
	Scheduler    *scheduler.Scheduler
	Dependencies map[string]api.Pinger

	closers []func()
}

// New connects the configured store and builds every component. reg
// receives the metrics; nil means the default registry.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config:       cfg,
		Logger:       logger,
		Dependencies: make(map[string]api.Pinger),
	}

	var (
		locker redisclient.Locker
		leaser redisclient.Leaser
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		local := redisclient.NewLocalLocker()
		a.Repo = booking.NewMemoryRepository()
		locker, leaser = local, local

	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection error: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Dependencies["postgres"] = pool
		logger.Info().Msg("connected to Postgres")

		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		})
		a.Dependencies["redis"] = api.PingFunc(func(ctx context.Context) error {
			return redisclient.Ping(ctx, rdb)
		})
		logger.Info().Msg("connected to Redis")

		redisLocker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.SchedulerLeaseTTL)
		a.Repo = booking.NewPgRepository(pool)
		locker, leaser = redisLocker, redisLocker
	}

	a.Renderer = notify.NewRenderer(notify.RendererConfig{
		Brand:          cfg.BrandName,
		BaseURL:        cfg.PublicBaseURL,
		CalendarDomain: cfg.CalendarDomain,
		Location:       cfg.Location,
	})

	channels := []notify.Channel{
		notify.NewEmailChannel(notify.NewEmailSender(notify.EmailConfig{
			SendGridAPIKey: cfg.SendGridAPIKey,
			SMTPHost:       cfg.SMTPHost,
			SMTPPort:       cfg.SMTPPort,
			SMTPUsername:   cfg.SMTPUsername,
			SMTPPassword:   cfg.SMTPPassword,
			FromEmail:      cfg.EmailFrom,
			FromName:       cfg.EmailFromName,
		}, logger), cfg.EmailBCC),
	}
	if cfg.WhatsAppEnabled() {
		channels = append(channels, notify.NewWhatsAppChannel(
			notify.NewTwilioWhatsAppSender(notify.TwilioConfig{
				AccountSID: cfg.TwilioAccountSID,
				AuthToken:  cfg.TwilioAuthToken,
				From:       cfg.WhatsAppFrom,
			}, logger),
			cfg.PhoneDefaultRegion, logger))
	} else {
		logger.Info().Msg("whatsapp channel disabled, twilio credentials missing")
	}

	a.Dispatcher = notify.NewDispatcher(a.Renderer, metrics.NewNotifyMetrics(reg), logger, channels...)

	resolver := booking.NewResolver(a.Repo, cfg.Location, time.Now)
	a.Service = booking.NewService(a.Repo, resolver, locker, a.Dispatcher)

	a.Scheduler = scheduler.New(a.Repo, a.Service, a.Dispatcher, leaser,
		metrics.NewSchedulerMetrics(reg), logger, scheduler.Config{
			Interval:         cfg.SchedulerInterval,
			FollowupInterval: cfg.FollowupInterval,
			Location:         cfg.Location,
		})

	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
