package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/memory"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/metrics"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/eca-purchase-flow/internal/interfaces/http"
	"github.com/jhoicas/eca-purchase-flow/internal/interfaces/stream"
	"github.com/jhoicas/eca-purchase-flow/pkg/config"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

// storage puertos del motor resueltos según STORE_DRIVER.
type storage struct {
	txRunner purchaseflow.TxRunner
	locker   purchaseflow.Locker
	repos    purchaseflow.Repositories
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.Log.Level,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar almacenamiento")
	}
	defer store.close()

	observer := metrics.NewPrometheusObserver()
	events := purchaseflow.NewEventRecorder(store.repos.Events, log.Component("event_recorder"), observer)
	orchestrator := purchaseflow.NewOrchestrator(store.txRunner, store.locker, events, log.Component("orchestrator"),
		purchaseflow.WithObserver(observer),
		purchaseflow.WithTransitionRetries(cfg.Engine.TransitionRetries),
	)
	processor := purchaseflow.NewProcessor(orchestrator, purchaseflow.NewDecoder(), log.Component("processor"))
	query := purchaseflow.NewQueryService(store.repos)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Processor:   processor,
		Query:       query,
		Metrics:     observer,
		JWTSecret:   cfg.JWT.Secret,
		JWTIssuer:   cfg.JWT.Issuer,
		ServiceName: cfg.App.Name,
	})

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled() {
		var writer stream.MessageWriter
		if w := stream.NewWriter(cfg.Kafka); w != nil {
			writer = w
		}
		consumer := stream.NewConsumer(stream.NewReader(cfg.Kafka), writer, processor, log.Component("kafka"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumidor Kafka finalizado")
			}
			if err := consumer.Close(); err != nil {
				log.Warn().Err(err).Msg("cerrar cliente Kafka")
			}
		}()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("transporte Kafka habilitado")
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	wg.Wait()

	log.Info().Msg("aplicación detenida")
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		s := memory.NewStore()
		log.Warn().Msg("almacenamiento en memoria: los datos no sobreviven al reinicio")
		return &storage{txRunner: s, locker: s, repos: s.Repositories(), close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	// Pool aparte para los advisory locks: cada lock retiene su conexión mientras dura la operación.
	lockCfg := cfg.DB
	lockCfg.MaxConns = max(4, cfg.DB.MaxConns/2)
	lockPool, err := postgres.NewPool(ctx, lockCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			lockPool.Close()
			return nil, err
		}
		log.Info().Msg("esquema aplicado")
	}
	return &storage{
		txRunner: postgres.NewTxRunner(pool),
		locker:   postgres.NewAdvisoryLocker(lockPool, log.Component("advisory_locker")),
		repos:    postgres.NewRepositories(pool),
		close: func() {
			lockPool.Close()
			pool.Close()
		},
	}, nil
}
