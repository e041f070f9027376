package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"awardvote/internal/audit"
	"awardvote/internal/catalog"
	jwttoken "awardvote/internal/jwt_token"
	"awardvote/internal/payment"
	"awardvote/internal/platform/config"
	"awardvote/internal/platform/httpserver"
	"awardvote/internal/platform/logger"
	"awardvote/internal/platform/metrics"
	ratelimit "awardvote/internal/ratelimit/middleware"
	ratelimitmetrics "awardvote/internal/ratelimit/metrics"
	ratelimitmodels "awardvote/internal/ratelimit/models"
	"awardvote/internal/recordstore"
	"awardvote/internal/results"
	resultsmetrics "awardvote/internal/results/metrics"
	sessionhandler "awardvote/internal/session/handler"
	sessionmetrics "awardvote/internal/session/metrics"
	sessionservice "awardvote/internal/session/service"
	"awardvote/internal/submission"
	submissionmetrics "awardvote/internal/submission/metrics"
	httptransport "awardvote/internal/transport/http"
	"awardvote/pkg/platform/circuit"
)

const (
	catalogTTL      = 30 * time.Second
	purgeInterval   = 5 * time.Minute
	sessionAudience = "awardvote-sessions"
	tokenIssuer     = "awardvote"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	platformMetrics := metrics.New()

	records := recordstore.New(cfg.RecordStore.BaseURL,
		recordstore.Collections{
			Categories:  cfg.RecordStore.Categories,
			Nominees:    cfg.RecordStore.Nominees,
			VoteRecords: cfg.RecordStore.VoteRecords,
		},
		cfg.RecordStore.RequestTimeout,
		recordstore.WithBreaker(circuit.New("record-store")),
		recordstore.WithLogger(log),
		recordstore.WithMetrics(platformMetrics),
	)

	gateway := payment.NewPaystackGateway(cfg.Payment.BaseURL, cfg.Payment.SecretKey,
		payment.WithPolling(cfg.Payment.PollInterval, cfg.Payment.Timeout),
		payment.WithCurrency(cfg.Payment.Currency),
		payment.WithBreaker(circuit.New("payment-gateway")),
		payment.WithLogger(log),
		payment.WithMetrics(platformMetrics),
	)

	loader := catalog.NewLoader(records)
	catalogCache := catalog.NewCache(loader, catalogTTL)

	submitMetrics := submissionmetrics.New()
	tallies := submission.NewTallyUpdater(records, infra.locker, log, submitMetrics)
	workflow := submission.New(records, infra.ledger, tallies,
		submission.WithConcurrency(cfg.Voting.SubmitConcurrency),
		submission.WithLogger(log),
		submission.WithMetrics(submitMetrics),
	)

	tokens := jwttoken.NewJWTService(cfg.Session.SigningKey, tokenIssuer, sessionAudience)
	sessions := sessionservice.New(infra.sessions, gateway, catalogCache, workflow, tokens,
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(sessionmetrics.New()),
		sessionservice.WithAuditPublisher(audit.NewPublisher(infra.auditStore)),
		sessionservice.WithAmounts(cfg.Voting.Amounts),
		sessionservice.WithCurrency(cfg.Payment.Currency),
		sessionservice.WithDeadline(cfg.Voting.Deadline),
		sessionservice.WithSessionTTL(cfg.Session.TTL),
		sessionservice.WithPaymentTimeout(cfg.Payment.Timeout),
	)

	limiter := ratelimit.New(infra.buckets, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
		ratelimit.WithRule(ratelimitmodels.ClassSessionOpen, ratelimitmodels.Rule{
			Limit: cfg.RateLimit.SessionsPerWindow, Window: cfg.RateLimit.Window,
		}),
		ratelimit.WithRule(ratelimitmodels.ClassPayment, ratelimitmodels.Rule{
			Limit: cfg.RateLimit.PaymentsPerWindow, Window: cfg.RateLimit.Window,
		}),
	)

	refresherOpts := []results.RefresherOption{
		results.WithLogger(log),
		results.WithMetrics(resultsmetrics.New()),
	}
	if infra.redis != nil {
		refresherOpts = append(refresherOpts, results.WithCache(results.NewRedisCache(infra.redis.Client)))
	}
	refresher := results.NewRefresher(loader, cfg.Results.RefreshInterval, refresherOpts...)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:  log,
		Metrics: platformMetrics,
		Handlers: []httptransport.Registrar{
			// The session timeout has to outlast a full payment poll.
			sessionhandler.New(sessions, tokens, log, cfg.Payment.Timeout+30*time.Second,
				sessionhandler.WithLimiter(limiter)),
			results.NewHandler(refresher, log),
		},
		Health: infra.health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	refresher.Start(gctx)
	defer refresher.Stop()

	if infra.auditWorker != nil {
		g.Go(func() error {
			if err := infra.auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if infra.memorySessions != nil {
		g.Go(func() error {
			ticker := time.NewTicker(purgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := infra.memorySessions.PurgeExpired(gctx); n > 0 {
						log.Debug("purged expired sessions", "count", n)
					}
					if n := infra.memoryBuckets.PurgeIdle(gctx); n > 0 {
						log.Debug("purged idle rate limit buckets", "count", n)
					}
				}
			}
		})
	}

	g.Go(func() error {
		log.Info("starting awardvote", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
