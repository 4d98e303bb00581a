package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/archive"
	"github.com/drope29/api-flashbets/internal/bets"
	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/gateway"
	"github.com/drope29/api-flashbets/internal/httpapi"
	"github.com/drope29/api-flashbets/internal/ledger"
	"github.com/drope29/api-flashbets/internal/oddscache"
	"github.com/drope29/api-flashbets/internal/shared/cache"
	"github.com/drope29/api-flashbets/internal/shared/config"
	"github.com/drope29/api-flashbets/internal/shared/db"
	"github.com/drope29/api-flashbets/internal/shared/logger"
	"github.com/drope29/api-flashbets/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx := context.Background()

	// Núcleo em memória: ledger autoritativo, registry de partidas, pipeline
	wallet := ledger.New(cfg.InitialBalanceCents)
	registry := engine.NewRegistry(log, cfg.WindowDuration)
	pipeline := bets.NewPipeline(log, wallet, registry)
	hub := gateway.NewHub(log, registry, pipeline, wallet, func(r *http.Request) bool { return true })

	// Broadcast local; com Redis configurado, espelha os deltas no Pub/Sub
	// e as odds correntes nas chaves de leitura
	var (
		bc         engine.Broadcaster = hub
		oddsMirror engine.OddsMirror
		rdb        *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))

		if cfg.BroadcastSubscribe {
			// modo réplica: consome o espelho de outro processo; publicar de
			// volta no canal ecoaria cada delta em dobro
			gateway.StartRedisSubscriber(ctx, rdb, hub, cfg.BroadcastChannel)
		} else {
			bc = gateway.Fanout{hub, gateway.NewRedisMirror(log, rdb, cfg.BroadcastChannel)}
		}
		oddsMirror = oddscache.New(rdb)
	}

	// Archive Postgres (best-effort, fora do caminho quente)
	var arc bets.Archive
	if cfg.PostgresDSN != "" {
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("pg", zap.Error(err))
		}
		defer pg.Close()
		log.Info("postgres connected")
		arc = archive.NewPostgres(pg)
	}

	// Eventos de domínio no Kafka
	var publ bets.Publisher
	if cfg.KafkaBrokers != "" {
		kp := bets.NewKafkaPublisher(log, cfg.KafkaBrokers,
			cfg.TopicBetAccepted, cfg.TopicBetSettled, cfg.TopicMatchFinished)
		defer kp.Close()
		log.Info("kafka writers ready", zap.String("brokers", cfg.KafkaBrokers))
		publ = kp
	}

	registry.Bind(bc, oddsMirror, pipeline)
	pipeline.Bind(bc, arc, publ)
	registry.StartJanitor(ctx, cfg.MatchAbandonTimeout, cfg.MatchRetention)

	// Partida sintética de debug: mesmo contrato de uma real, já LIVE
	if cfg.DebugMatch {
		m, err := registry.CreateDebug()
		if err != nil {
			log.Fatal("debug match", zap.Error(err))
		}
		if err := m.Start(); err != nil {
			log.Fatal("debug match start", zap.Error(err))
		}
	}

	// metrics/health em porta própria
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	api := httpapi.NewServer(log, registry, pipeline, wallet, hub.HandleWS)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	log.Info("flashbets-server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
