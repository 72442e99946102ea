package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/api"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/memstore"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/postgres"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/profile"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/queue"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/quiz"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/telemetry"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	QueueBackendStore = "store"
	QueueBackendRedis = "redis"

	LedgerRPC = "rpc"
	LedgerTx  = "tx"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is "postgres" or "memory".
		Driver string
		// SeedFile is a JSON question file loaded into the memory store.
		SeedFile string
	}

	Queue struct {
		// Backend is "store" (the configured store driver) or "redis".
		Backend string
	}

	Progress struct {
		// Ledger is "rpc" (add_xp stored procedure) or "tx" (in-process transaction).
		Ledger        string
		XPPerLevel    int
		LevelReward   int
		AutoProvision bool
	}

	Quiz struct {
		PoolSize          int
		PickSize          int
		DefaultDifficulty string
	}

	Redis struct {
		Queue  RedisConfig
		Pubsub RedisConfig
	}

	Postgres struct {
		Main    PostgresConfig
		Migrate bool
	}
}

// DefaultConfig returns the configuration used for keys the config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 3000
	c.GRPC.Port = 3001
	c.Store.Driver = StoreDriverPostgres
	c.Queue.Backend = QueueBackendStore
	c.Progress.Ledger = LedgerRPC
	c.Progress.XPPerLevel = profile.DefaultXPPerLevel
	c.Progress.LevelReward = profile.DefaultLevelReward
	c.Quiz.PoolSize = quiz.DefaultPoolSize
	c.Quiz.PickSize = quiz.DefaultPickSize
	c.Quiz.DefaultDifficulty = "easy"
	c.Redis.Queue.Prefix = "spokely"
	c.Redis.Pubsub.Prefix = "spokely"
	return c
}

type Server struct {
	c Config

	eb       *event.Bus
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	infra struct {
		redis struct {
			queue  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			main *pgxpool.Pool
		}

		memory *memstore.Store
	}

	store struct {
		profile profile.Store
		ledger  profile.Ledger
		queue   queue.Store
		quiz    quiz.Store
	}

	service struct {
		profile *profile.Service
		queue   *queue.Service
		quiz    *quiz.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = telemetry.NewMetrics(s.registry)
	s.eb = event.NewBus(event.WithFailureHook(s.metrics.EventFailed))
	s.metrics.Subscribe(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initStores(); err != nil {
		return nil, fmt.Errorf("server: init stores: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if s.c.Queue.Backend == QueueBackendRedis {
		s.infra.redis.queue, err = connect("queue", s.c.Redis.Queue)
		if err != nil {
			return fmt.Errorf("queue: %w", err)
		}
	}

	if len(s.c.Redis.Pubsub.Addrs) > 0 {
		s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	} else {
		slog.Info("server: redis pubsub not configured, notifications disabled")
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	if s.c.Store.Driver != StoreDriverPostgres {
		return nil
	}

	connect := func(pc PostgresConfig) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.main, err = connect(s.c.Postgres.Main)
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}

	if s.c.Postgres.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := postgres.Migrate(ctx, s.infra.postgres.main); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) initStores() error {
	switch s.c.Store.Driver {
	case StoreDriverPostgres:
		db := s.infra.postgres.main
		s.store.profile = profile.NewPostgresStore(db)
		s.store.queue = queue.NewPostgresStore(db)
		s.store.quiz = quiz.NewPostgresStore(db)

		switch s.c.Progress.Ledger {
		case LedgerRPC:
			s.store.ledger = profile.NewRPCLedger(db)
		case LedgerTx:
			s.store.ledger = profile.NewTxLedger(db, s.c.Progress.XPPerLevel)
		default:
			return fmt.Errorf("unknown ledger %q", s.c.Progress.Ledger)
		}

	case StoreDriverMemory:
		ms := memstore.New(memstore.WithXPPerLevel(s.c.Progress.XPPerLevel))
		if err := seedMemory(ms, s.c.Store.SeedFile); err != nil {
			return err
		}

		s.infra.memory = ms
		s.store.profile = ms
		s.store.ledger = ms
		s.store.queue = ms
		s.store.quiz = ms

	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}

	switch s.c.Queue.Backend {
	case QueueBackendStore:
	case QueueBackendRedis:
		s.store.queue = queue.NewRedisStore(s.infra.redis.queue, s.c.Redis.Queue.Prefix)
	default:
		return fmt.Errorf("unknown queue backend %q", s.c.Queue.Backend)
	}

	return nil
}

func seedMemory(ms *memstore.Store, file string) error {
	if file == "" {
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer f.Close()

	n, err := ms.LoadQuestions(f)
	if err != nil {
		return fmt.Errorf("seed %s: %w", file, err)
	}

	slog.Info("server: seeded memory store", "questions", n)
	return nil
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewService(quiz.Config{
		Store:             s.store.quiz,
		PoolSize:          s.c.Quiz.PoolSize,
		PickSize:          s.c.Quiz.PickSize,
		DefaultDifficulty: s.c.Quiz.DefaultDifficulty,
	})

	s.service.profile = profile.NewService(profile.Config{
		Store:         s.store.profile,
		Ledger:        s.store.ledger,
		History:       s.service.quiz,
		EventBus:      s.eb,
		LevelReward:   s.c.Progress.LevelReward,
		AutoProvision: s.c.Progress.AutoProvision,
	})

	s.service.queue = queue.NewService(queue.Config{
		Store:    s.store.queue,
		Profiles: s.service.profile,
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPMiddleware(s.metrics))

	c := api.Config{
		Router:       e,
		EventBus:     s.eb,
		Profile:      s.service.profile,
		Queue:        s.service.queue,
		Quiz:         s.service.quiz,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"queue":  s.infra.redis.queue,
		"pubsub": s.infra.redis.pubsub,
	} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "client", name, "error", err)
		}
	}

	if s.infra.postgres.main != nil {
		s.infra.postgres.main.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
