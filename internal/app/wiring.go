package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/accounting"
	apihttp "clipperstats/internal/api/http"
	"clipperstats/internal/api/http/handlers"
	"clipperstats/internal/api/http/mw"
	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	dedupe "clipperstats/internal/dedupe/redis"
	"clipperstats/internal/entities"
	"clipperstats/internal/handler"
	"clipperstats/internal/ingest"
	"clipperstats/internal/metrics"
	"clipperstats/internal/pricing"
	"clipperstats/internal/pubsub/nats"
	"clipperstats/internal/rollup"
	"clipperstats/internal/security"
	"clipperstats/internal/service"
	"clipperstats/internal/store/redisstore"
	"clipperstats/internal/stores/clickhouse"
	"clipperstats/internal/stores/redis"
)

type Container struct {
	app *App

	// infra
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *nats.Client
	consumer *ingest.Consumer

	httpSrv  *apihttp.Server
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

// Build constructs the whole dependency graph. The returned cleanup closes
// everything Build opened, in reverse dependency order.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	profiler, err := metrics.InitPProf(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize pyroscope: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	// Redis client
	rdb, err := redis.New(ctx, &cfg.Stores.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}
	lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)

	// Bloom filter in front of the dedupe keys, optional
	var bloom *dedupe.Bloom
	if cfg.Dedupe.Bloom.Enabled {
		if bloom, err = dedupe.NewBloom(&cfg.Dedupe.Bloom, rdb); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize bloom: %w", err)
		}
		if err = bloom.Ensure(ctx); err != nil {
			// redis without the BF module still dedupes correctly, just slower
			lg.Errorf("Bloom filter unavailable, falling back to plain keys: %v", err)
			bloom = nil
		} else {
			lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f",
				cfg.Dedupe.Bloom.Key, cfg.Dedupe.Bloom.Capacity, cfg.Dedupe.Bloom.ErrRate)
		}
	}

	// Dedupe
	deduper, err := dedupe.NewRedisDeduper(lg, &cfg.Dedupe, rdb, bloom)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
	}
	lg.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Dedupe.Prefix)

	// Chain reader
	var reader *chain.Static
	if cfg.Chain.SnapshotPath != "" {
		if reader, err = chain.LoadSnapshot(cfg.Chain.SnapshotPath); err != nil {
			return nil, nil, fmt.Errorf("failed to load chain snapshot: %w", err)
		}
		lg.Infof("Successfully load chain snapshot from %s", cfg.Chain.SnapshotPath)
	} else {
		reader = chain.NewStatic()
		lg.Info("No chain snapshot configured, starting with empty chain state")
	}

	// Pricing and accounting
	pricer, err := pricing.NewResolver(lg, reader, &cfg.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize price resolver: %w", err)
	}
	acct, err := accounting.New(lg, reader, pricer, &cfg.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize accountant: %w", err)
	}

	// Aggregate store and entity registry
	baseStore := redisstore.New(rdb, cfg.Stores.Redis.Prefix)
	registry := entities.NewRegistry(lg, baseStore, reader, &cfg.Chain)
	engine := rollup.NewEngine(lg, acct)
	handlersSet := handler.New(lg, reader, pricer, acct, engine, &cfg.Chain)
	lg.Info("Successfully initialize aggregation layer")

	// ClickHouse client + archive writer
	ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
	}
	url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
	lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

	chWriter := clickhouse.NewWriter(lg, ch.Native, cfg.Stores.ClickHouse)
	lg.Info("Successfully initialize clickhouse writer")

	// NATS broadcaster
	natsCl, err := nats.Connect(lg, &cfg.PubSub.NATS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
	}

	// Service layer
	processor := service.NewProcessor(lg, baseStore, registry, handlersSet, deduper, chWriter, natsCl)

	// Ingest consumer
	consumer, err := ingest.NewConsumer(lg, &cfg.Ingest, processor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize ingest consumer: %w", err)
	}

	// JWT verifier
	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		verifier, err = security.NewRS256Verifier(cfg.Security.JWT.PublicKeyPath, cfg.Security.JWT.Audience, cfg.Security.JWT.Issuer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize jwt verifier: %w", err)
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	// HTTP server
	var corsMW *mw.CORSMiddleware
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	var rateLimitMW *mw.RateLimitMiddleware
	if cfg.API.HTTP.RateLimit.Enabled {
		rateLimitMW = mw.NewRateLimit(rdb.Client, mw.RateLimitConfig{
			ByIP: mw.RateBucket{
				RefillPerSec: cfg.API.HTTP.RateLimit.ByIP.RefillPerSec,
				Burst:        cfg.API.HTTP.RateLimit.ByIP.Burst,
				TTL:          cfg.API.HTTP.RateLimit.ByIP.TTL,
			},
			ByJWT: mw.RateBucket{
				RefillPerSec: cfg.API.HTTP.RateLimit.ByJWT.RefillPerSec,
				Burst:        cfg.API.HTTP.RateLimit.ByJWT.Burst,
				TTL:          cfg.API.HTTP.RateLimit.ByJWT.TTL,
			},
			Verifier: verifier,
		})
	}

	apiHandler := handlers.NewHandler(lg, processor, cfg.Chain.PoolAddress)
	router := apihttp.BuildRouter(
		apiHandler,
		mw.NewLogging(lg),
		mw.NewGzip(cfg.API.HTTP.GzipLevel, lg),
		rateLimitMW,
		mw.NewJWTMiddleware(verifier),
		corsMW,
	)
	httpSrv := apihttp.NewServer(lg, &cfg.API.HTTP, router)
	lg.Info("Successfully initialize HTTP server")

	c := &Container{
		app:      NewApp(lg, httpSrv, consumer),
		redis:    rdb,
		ch:       ch,
		chWriter: chWriter,
		nc:       natsCl,
		consumer: consumer,
		httpSrv:  httpSrv,
		profiler: profiler,
	}

	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if c.profiler != nil {
			if err := c.profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		}

		c.consumer.Close()

		if err := c.nc.Close(); err != nil {
			lg.Errorf("Failed to close by cleanupF nats client: %v", err)
		}

		if err := c.chWriter.Close(ctxClean); err != nil {
			lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
		}

		if err := c.ch.Close(); err != nil {
			lg.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
		}

		if err := c.redis.Close(); err != nil {
			lg.Errorf("Failed to close by cleanupF redis client: %v", err)
		}

		lg.Info("Successfully cleaned up dependency")
	}

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}
