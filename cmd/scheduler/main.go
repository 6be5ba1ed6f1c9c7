package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/therapy-booking/internal/app"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run every task a single time and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("scheduler", "development", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("scheduler", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SchedulerInterval).
		Dur("followup_interval", cfg.FollowupInterval).
		Bool("once", *once).
		Msg("scheduler starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	if *once {
		err := a.Scheduler.RunOnce(rootCtx)
		a.Dispatcher.Wait()
		if err != nil {
			logger.Error().Err(err).Msg("scheduler run failed")
		}
		return
	}

	a.Scheduler.Start(rootCtx)
	<-rootCtx.Done()

	logger.Info().Msg("shutdown signal received, stopping scheduler")
	a.Scheduler.Stop()
	a.Dispatcher.Wait()
}
