package main

import (
	"context"
	"database/sql"
	"log/slog"

	"awardvote/internal/audit"
	"awardvote/internal/platform/config"
	"awardvote/internal/platform/postgres"
	"awardvote/internal/platform/redis"
	ratelimit "awardvote/internal/ratelimit/middleware"
	"awardvote/internal/ratelimit/store/bucket"
	sessionservice "awardvote/internal/session/service"
	sessionstore "awardvote/internal/session/store"
	"awardvote/internal/submission"
	"awardvote/internal/submission/ledger"
	"awardvote/internal/submission/lock"
	httptransport "awardvote/internal/transport/http"
)

const auditBufferSize = 10_000

// infra holds the backing stores. Each external system is optional; without
// it the in-process implementation is used, which is only safe for a single
// replica.
type infra struct {
	redis          *redis.Client
	db             *sql.DB
	kafka          *audit.KafkaStore
	sessions       sessionservice.Store
	memorySessions *sessionstore.InMemoryStore
	locker         lock.Locker
	buckets        ratelimit.BucketStore
	memoryBuckets  *bucket.InMemoryBucketStore
	ledger         submission.Ledger
	auditStore     audit.Store
	auditWorker    *audit.Worker
	health         []httptransport.HealthCheck
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}

	redisClient, err := redis.Open(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		log.Info("using redis for sessions, tally locks, rate limits and results")
		in.redis = redisClient
		in.sessions = sessionstore.NewRedis(redisClient.Client)
		in.locker = lock.NewRedisLocker(redisClient.Client)
		in.buckets = bucket.NewRedisBucketStore(redisClient.Client)
		in.health = append(in.health, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
	} else {
		in.memorySessions = sessionstore.NewInMemory()
		in.sessions = in.memorySessions
		in.locker = lock.NewKeyedMutex()
		in.memoryBuckets = bucket.NewInMemoryBucketStore()
		in.buckets = in.memoryBuckets
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		in.Close()
		return nil, err
	}
	if db != nil {
		in.db = db
		store := ledger.NewPostgres(db)
		if err := store.EnsureSchema(ctx); err != nil {
			in.Close()
			return nil, err
		}
		log.Info("using postgres for the submission ledger")
		in.ledger = store
		in.health = append(in.health, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
	} else {
		in.ledger = ledger.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaStore(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.kafka = kafka
		if err := kafka.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		buffer := audit.NewRingBuffer(auditBufferSize)
		in.auditStore = audit.NewBufferedStore(buffer)
		in.auditWorker = audit.NewWorker(kafka, buffer, log)
		in.health = append(in.health, httptransport.HealthCheck{Name: "kafka", Check: kafka.Ping})
		log.Info("publishing audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	} else {
		in.auditStore = audit.NewLogStore(log)
	}

	return in, nil
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
}
