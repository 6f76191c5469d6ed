package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paidwall/internal/api/http/handler"
	"paidwall/internal/api/http/route"
	"paidwall/internal/apperrors"
	"paidwall/internal/config"
	"paidwall/internal/model"
	"paidwall/internal/repository"
	"paidwall/internal/retention"
	"paidwall/internal/service"
	"paidwall/pkg/postgres"
	"paidwall/pkg/redis"
	"paidwall/pkg/server"
	"paidwall/pkg/x402"
)

const defaultTimeout = 15 * time.Second

type WallService interface {
	Submit(ctx context.Context, rawBody, rawAuthor string) (string, error)
	PendingExists(ctx context.Context, token string) (bool, error)
	Finalize(ctx context.Context, token, payer string) (*model.Message, error)
	List(ctx context.Context) ([]model.Message, error)
	Remove(ctx context.Context, id int64, credential string) error
}

type WallHandler interface {
	Submit(c *gin.Context)
	Finalize(c *gin.Context)
	Wall(c *gin.Context)
	ListMessages(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type HealthHandler interface {
	Ping(c *gin.Context)
	Health(c *gin.Context)
}

type Handler struct {
	WallHandler   WallHandler
	HealthHandler HealthHandler
}

type Service struct {
	WallService *service.WallService
}

type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Handler    *Handler
	Service    *Service
	Store      repository.Store
	DB         postgres.Postgres
	RDB        redis.Redis
	HTTPServer server.HTTPServer
	Janitor    *retention.Janitor

	janitorCancel context.CancelFunc
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, store, err := initStore(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	rdb, err := initRedis(&cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize redis", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	svc := initService(log, cfg, store)

	hdl := initHandler(log, cfg, svc)

	httpServer := initHTTPServer(log, cfg, hdl, svc, rdb)

	janitor := retention.NewJanitor(log, store, cfg.Retention)

	return &App{
		Cfg:        cfg,
		Log:        log,
		Handler:    hdl,
		Service:    svc,
		Store:      store,
		DB:         db,
		RDB:        rdb,
		HTTPServer: httpServer,
		Janitor:    janitor,
	}, nil
}

func MustNew(cfg *config.Config, log *zap.Logger) *App {
	app, err := New(cfg, log)
	if err != nil {
		panic(err)
	}
	return app
}

func (a *App) Run(ctx context.Context) error {
	janitorCancel, err := a.Janitor.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start retention janitor: %w", err)
	}
	a.janitorCancel = janitorCancel

	return a.HTTPServer.Run()
}

func (a *App) Shutdown() error {
	if a.janitorCancel != nil {
		a.janitorCancel()
	}

	err := apperrors.ErrShutdown

	if srvErr := a.HTTPServer.Shutdown(); srvErr != nil {
		err = fmt.Errorf("%w, failed to shutdown http server: %w", err, srvErr)
	}

	a.Log.Debug("Http server shutdown")

	if storeErr := a.Store.Close(); storeErr != nil {
		err = fmt.Errorf("%w, failed to close store: %w", err, storeErr)
	}

	if a.DB != nil {
		a.DB.Close()
		a.Log.Debug("Database closed")
	}

	if a.RDB != nil {
		if rdbErr := a.RDB.Close(); rdbErr != nil {
			err = fmt.Errorf("%w, failed to close redis: %w", err, rdbErr)
		}
		a.Log.Debug("Redis closed")
	}

	if !errors.Is(err, apperrors.ErrShutdown) {
		return err
	}

	return nil
}

// initStore selects the persistence backend once; everything above sees
// only the repository.Store contract. The returned Postgres handle is nil
// for the embedded backend.
func initStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (postgres.Postgres, repository.Store, error) {
	var (
		db    postgres.Postgres
		store repository.Store
	)

	switch cfg.Storage.Driver {
	case "postgres":
		postgresCfg := &postgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Migration: postgres.Migration{
				Path:      cfg.Database.Migration.Path,
				AutoApply: cfg.Database.Migration.AutoApply,
			},
		}

		pg, err := postgres.New(postgresCfg)
		if err != nil {
			return nil, nil, err
		}

		db = pg
		store = repository.NewPostgresStore(pg.Pool())
		log.Debug("Postgres store initialized")

	case "pebble":
		pb, err := repository.NewPebbleStore(log, cfg.Storage.Pebble.Path)
		if err != nil {
			return nil, nil, err
		}

		store = pb
		log.Debug("Pebble store initialized", zap.String("path", cfg.Storage.Pebble.Path))

	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	if err := store.CreateSchema(ctx); err != nil {
		store.Close()
		if db != nil {
			db.Close()
		}
		return nil, nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, store, nil
}

func initRedis(cfg *config.Redis) (redis.Redis, error) {
	if !cfg.Enable {
		return nil, nil
	}

	redisCfg := &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb, err := redis.New(redisCfg)
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func initService(log *zap.Logger, cfg *config.Config, store repository.Store) *Service {
	limits := service.Limits{
		MaxBodyLen:    cfg.Wall.MaxBodyLen,
		MaxAuthorLen:  cfg.Wall.MaxAuthorLen,
		DefaultAuthor: cfg.Wall.DefaultAuthor,
	}

	wallSvc := service.NewWallService(log, store, limits, cfg.Admin.Secret)
	log.Debug("Wall service initialized")

	return &Service{
		WallService: wallSvc,
	}
}

func initHandler(log *zap.Logger, cfg *config.Config, svc *Service) *Handler {
	wallHdl := handler.NewWallHandler(log, svc.WallService, cfg.HTTPServer.BasePath, cfg.Payment.PriceLabel)
	log.Debug("Wall handler initialized")

	healthHdl := handler.NewHealthHandler(cfg.App.ServiceName, cfg.App.Version)
	log.Debug("Health handler initialized")

	return &Handler{
		WallHandler:   wallHdl,
		HealthHandler: healthHdl,
	}
}

func initHTTPServer(log *zap.Logger, cfg *config.Config, hdl *Handler, svc *Service, rdb redis.Redis) server.HTTPServer {
	facilitator := x402.NewFacilitatorClient(
		cfg.Payment.FacilitatorURL,
		time.Duration(cfg.Payment.MaxTimeoutSeconds)*time.Second,
	)

	rdbClient := redisClient(rdb)

	router := route.SetupRouter(
		log,
		cfg,
		hdl.WallHandler,
		hdl.HealthHandler,
		svc.WallService,
		facilitator,
		rdbClient,
	)

	return server.NewHTTPServer(
		server.WithAddr(cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		server.WithTimeout(cfg.HTTPServer.Timeout.Read, cfg.HTTPServer.Timeout.Write, cfg.HTTPServer.Timeout.Idle),
		server.WithHandler(router),
	)
}

func redisClient(rdb redis.Redis) *goredis.Client {
	if rdb == nil {
		return nil
	}

	return rdb.Client()
}
