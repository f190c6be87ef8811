package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/config"
	"github.com/memohai/chatrelay/internal/db"
	"github.com/memohai/chatrelay/internal/dialogue"
	"github.com/memohai/chatrelay/internal/event"
	"github.com/memohai/chatrelay/internal/handlers"
	"github.com/memohai/chatrelay/internal/healthcheck"
	"github.com/memohai/chatrelay/internal/inbound"
	"github.com/memohai/chatrelay/internal/janitor"
	"github.com/memohai/chatrelay/internal/logger"
	"github.com/memohai/chatrelay/internal/outbox"
	"github.com/memohai/chatrelay/internal/reply"
	"github.com/memohai/chatrelay/internal/server"
	"github.com/memohai/chatrelay/internal/storage/memory"
	"github.com/memohai/chatrelay/internal/storage/postgres"
	"github.com/memohai/chatrelay/internal/storage/redis"
	"github.com/memohai/chatrelay/internal/storage/sqlite"
	"github.com/memohai/chatrelay/internal/webhook"
	"github.com/memohai/chatrelay/internal/workerpool"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reply workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStorage,
			provideDialogueStore,
			provideChatBotStore,
			provideProbe,
			provideChatBotService,
			provideDialogueService,
			event.NewHub,
			provideReplyGenerator,
			provideDispatcher,
			provideWorkerPool,
			provideScheduler,
			providePipeline,
			provideJanitor,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewChatBotHandler),
			provideServerHandler(provideChannelHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startWorkerPool,
			startConsumer,
			startJanitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	return loadConfig()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// storageBackend is the selected persistence driver.
type storageBackend struct {
	Dialogues dialogue.Store
	Bots      chatbot.Store
	Ping      healthcheck.PingFunc
}

func provideStorage(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (storageBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Storage.Driver {
	case "postgres":
		conn, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return storageBackend{}, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
		log.Info("storage ready", slog.String("driver", "postgres"), slog.String("host", cfg.Postgres.Host))
		return storageBackend{
			Dialogues: postgres.NewDialogueStore(conn),
			Bots:      postgres.NewChatBotStore(conn),
			Ping:      conn.Ping,
		}, nil
	case "redis":
		client, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return storageBackend{}, err
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
		log.Info("storage ready", slog.String("driver", "redis"), slog.String("addr", cfg.Redis.Addr))
		return storageBackend{
			Dialogues: redis.NewDialogueStore(client, cfg.Redis.KeyPrefix),
			Bots:      redis.NewChatBotStore(client, cfg.Redis.KeyPrefix),
			Ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		}, nil
	case "sqlite":
		gdb, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return storageBackend{}, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return storageBackend{}, err
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return sqlDB.Close() }})
		log.Info("storage ready", slog.String("driver", "sqlite"), slog.String("path", cfg.SQLite.Path))
		return storageBackend{
			Dialogues: sqlite.NewDialogueStore(gdb),
			Bots:      sqlite.NewChatBotStore(gdb),
			Ping:      sqlDB.PingContext,
		}, nil
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		return storageBackend{
			Dialogues: memory.NewDialogueStore(),
			Bots:      memory.NewChatBotStore(),
		}, nil
	}
}

func provideDialogueStore(b storageBackend) dialogue.Store { return b.Dialogues }
func provideChatBotStore(b storageBackend) chatbot.Store { return b.Bots }

// provideProbe checks storage and, when continuations go through the broker,
// the AMQP connection.
func provideProbe(b storageBackend, sched schedulerSetup) handlers.Probe {
	checker := healthcheck.New()
	checker.Add("storage", b.Ping)
	if conn := sched.Conn; conn != nil {
		checker.Add("amqp", func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		})
	}
	return checker
}

func provideChatBotService(log *slog.Logger, store chatbot.Store) *chatbot.Service {
	return chatbot.NewService(log, store)
}

func provideDialogueService(log *slog.Logger, store dialogue.Store, bots *chatbot.Service) *dialogue.Service {
	return dialogue.NewService(log, store, bots)
}

func provideReplyGenerator(log *slog.Logger, cfg config.Config) reply.Generator {
	var gen reply.Generator = reply.Mock{}
	if cfg.Reply.Driver == "gateway" {
		gen = reply.NewGateway(log, cfg.Reply.GatewayURL, cfg.Reply.TimeoutDuration())
	}
	return reply.WithTimeout(gen, cfg.Reply.TimeoutDuration())
}

func provideDispatcher(log *slog.Logger, cfg config.Config) *webhook.Dispatcher {
	return webhook.NewDispatcher(log, cfg.Dispatch.TimeoutDuration())
}

// provideWorkerPool runs continuations in process. With the amqp scheduler it
// executes the deliveries taken off the queue instead.
func provideWorkerPool(log *slog.Logger, cfg config.Config) *workerpool.Pool {
	workers := cfg.Inbound.Workers
	if cfg.Scheduler.Driver == "amqp" && cfg.AMQP.Workers > 0 {
		workers = cfg.AMQP.Workers
	}
	return workerpool.New(log, workers, cfg.Inbound.QueueSize)
}

// startWorkerPool takes storage and the scheduler so their hooks are
// registered first. Hooks stop in reverse, so running jobs drain before
// either is closed.
func startWorkerPool(lc fx.Lifecycle, pool *workerpool.Pool, _ storageBackend, _ schedulerSetup) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			pool.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error { return pool.Shutdown(ctx) },
	})
}

// schedulerSetup is the selected continuation scheduler. Conn is nil unless
// continuations go through the broker.
type schedulerSetup struct {
	Scheduler inbound.Scheduler
	Conn      *amqp.Connection
}

func provideScheduler(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, pool *workerpool.Pool) (schedulerSetup, error) {
	if cfg.Scheduler.Driver != "amqp" {
		return schedulerSetup{Scheduler: inbound.NewPoolScheduler(log, pool)}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	conn, err := outbox.Dial(ctx, outbox.DialOptions{URL: cfg.AMQP.URL, Logger: log})
	if err != nil {
		return schedulerSetup{}, fmt.Errorf("amqp connect: %w", err)
	}
	publisher, err := outbox.NewPublisher(log, conn, cfg.AMQP.Exchange)
	if err != nil {
		_ = conn.Close()
		return schedulerSetup{}, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		_ = publisher.Close()
		return conn.Close()
	}})
	return schedulerSetup{Scheduler: publisher, Conn: conn}, nil
}

func providePipeline(log *slog.Logger, cfg config.Config, store dialogue.Store, gen reply.Generator, dispatcher *webhook.Dispatcher, sched schedulerSetup, hub *event.Hub) (*inbound.Pipeline, error) {
	policy, err := inbound.ParseDedupPolicy(cfg.Inbound.Dedup)
	if err != nil {
		return nil, err
	}
	return inbound.NewPipeline(log, store, gen, dispatcher, sched.Scheduler, hub, inbound.Options{
		Dedup:               policy,
		DedupWindow:         cfg.Inbound.DedupWindow,
		ContinuationTimeout: cfg.Inbound.ContinuationTimeoutDuration(),
	}), nil
}

func provideJanitor(log *slog.Logger, cfg config.Config, channels *dialogue.Service, bots *chatbot.Service) (*janitor.Janitor, error) {
	return janitor.New(log, cfg.Janitor.Schedule, channels, bots)
}

func provideChannelHandler(log *slog.Logger, service *dialogue.Service, hub *event.Hub) *handlers.ChannelHandler {
	return handlers.NewChannelHandler(log, service, hub)
}

func provideWebhookHandler(log *slog.Logger, pipeline *inbound.Pipeline) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, pipeline)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, server.Options{
		Addr:      params.Config.Server.Addr,
		JWTSecret: params.Config.Auth.JWTSecret,
	}, params.ServerHandlers)
}

func startConsumer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, sched schedulerSetup, pool *workerpool.Pool, pipeline *inbound.Pipeline) {
	if sched.Conn == nil {
		return
	}
	consumer := outbox.NewConsumer(log, sched.Conn, outbox.ConsumerOptions{
		Exchange: cfg.AMQP.Exchange,
		Queue:    cfg.AMQP.Queue,
		Prefetch: cfg.AMQP.Prefetch,
	}, pool, pipeline.Continue)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return consumer.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return consumer.Shutdown(ctx) },
	})
}

func startJanitor(lc fx.Lifecycle, j *janitor.Janitor) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return j.Start(ctx) },
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return j.Stop(stopCtx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			logger.Info("server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
