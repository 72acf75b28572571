package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/peer"
	"github.com/MikeDev101/coopstack/server/pkg/signaling"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/storage/redis"
)

const (
	shutdownTimeout = 5 * time.Second
	recordCacheKB   = 4096
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	if err := newCmd(cfg).ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg(eris.ToString(err, false))
	}
}

func setupLogging(cfg *Config) {
	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.logPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func options(ctx context.Context, cfg *Config) (signaling.Options, func(), error) {
	opts := signaling.Options{
		AllowedOrigins: cfg.allowedOrigins,
		PublicURL:      cfg.publicURL,
		Manager: manager.Options{
			GracePeriod: cfg.gracePeriod,
			MaxPlayers:  cfg.maxPlayers,
		},
	}
	cleanup := func() {}

	if cfg.redisAddress != "" {
		store := redis.NewStore(redis.Options{
			Addr:     cfg.redisAddress,
			Password: cfg.redisPassword,
		}, "coopstack", cfg.sessionTTL)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return opts, cleanup, err
		}
		opts.Manager.Store = storage.NewCached(store, recordCacheKB, time.Minute)
		cleanup = func() { _ = store.Close() }
		log.Info().Str("address", cfg.redisAddress).Msg("session records stored in redis")
	}

	if cfg.relay {
		opts.Relay = &peer.Config{
			ICEServers: peer.ParseICEServers(cfg.iceServers),
			TURNOnly:   cfg.relayTURNOnly,
		}
	}
	return opts, cleanup, nil
}

func serve(ctx context.Context, cfg *Config) error {
	setupLogging(cfg)

	if cfg.statsdAddress != "" {
		if err := statsd.Init(cfg.statsdAddress, nil); err != nil {
			return err
		}
		defer func() { _ = statsd.Close() }()
	}

	opts, cleanup, err := options(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := signaling.Initialize(opts)

	app := fiber.New(fiber.Config{
		AppName:               "coopstack",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{AllowMethods: fiber.MethodGet}))
	srv.Routes(app)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		log.Info().
			Str("address", cfg.address()).
			Str("scheme", cfg.scheme()).
			Bool("relay", cfg.relay).
			Msg("listening")
		if cfg.tlsCert != "" {
			return app.ListenTLS(cfg.address(), cfg.tlsCert, cfg.tlsKey)
		}
		return app.Listen(cfg.address())
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !eris.Is(err, context.Canceled) {
		return err
	}
	return nil
}
