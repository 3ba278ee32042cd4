// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/events"
	httptransport "lifeline/internal/http"
	"lifeline/internal/infra"
	"lifeline/internal/maps"
	"lifeline/internal/metrics"
	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/dispatch"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/responder"
	"lifeline/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := infra.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	collector := metrics.NewCollector()

	hub := events.NewHub(logger, collector)
	eventBridge := events.NewBridge(hub)

	var dispatcher notify.Dispatcher = notify.NopDispatcher{}
	if cfg.Notify.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.Notify.WebhookURL, logger)
	}
	notifier := notify.NewBridge(dispatcher)

	var estimator request.DistanceEstimator
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		estimator = routes
	}

	geoStore := dispatch.NewGeoStore(redisClient)

	responderStore := responder.NewPGStore(dbPool)
	responderSvc := responder.NewService(responderStore, geoStore, eventBridge, logger)

	requestStore := request.NewPGStore(dbPool)

	billingStore := billing.NewPGStore(dbPool)
	billingSvc := billing.NewService(billingStore, requestStore, eventBridge, notifier, cfg.Billing, logger)

	dispatchSvc := dispatch.NewService(geoStore, responderStore, requestStore, billingSvc, eventBridge, notifier, collector, cfg.Dispatch, logger)

	requestSvc := request.NewService(requestStore, dispatchSvc, billingSvc, eventBridge, notifier, estimator, collector, logger)

	handler := httptransport.NewRouter(httptransport.ServerDeps{
		Requests:   requestSvc,
		Responders: responderSvc,
		Dispatch:   dispatchSvc,
		Billing:    billingSvc,
		Hub:        hub,
		Chat:       eventBridge,
		Metrics:    collector,
		Log:        logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown did not finish cleanly")
		}
	}()

	logger.WithField("addr", cfg.HTTP.Addr).Info("lifeline api listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
