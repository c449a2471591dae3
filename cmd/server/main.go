package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "reward_engine/internal/domain/common"
	_ "reward_engine/internal/domain/coupon"
	_ "reward_engine/internal/domain/mission"
	_ "reward_engine/internal/domain/notification"
	_ "reward_engine/internal/domain/participation"
	_ "reward_engine/internal/domain/referral"
	_ "reward_engine/internal/domain/settlement"
	_ "reward_engine/internal/domain/user"
	"reward_engine/internal/pkg/caching"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/lock"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/realtime"
	"reward_engine/internal/pkg/registry"
	"reward_engine/internal/pkg/uploader"
	"reward_engine/pkg/database"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	"reward_engine/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "reward-engine",
		Usage: "mission reward API",
		Commands: []*cli.Command{
			commandServer(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandServer() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "serve address, overrides server.port",
			},
		},
		Action: func(c *cli.Context) error {
			config.LoadConfig()
			cfg := config.GlobalConfig
			if err := logger.Init(cfg.App.Env); err != nil {
				return err
			}
			defer logger.Sync()

			router, cleanup, err := buildRouter(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			addr := c.String("addr")
			if addr == "" {
				addr = ":" + cfg.Server.Port
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errWg, errCtx := errgroup.WithContext(ctx)
			errWg.Go(func() error {
				logger.Log.Info("http server listening", zap.String("addr", addr), zap.String("mode", cfg.Server.Mode))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			errWg.Go(func() error {
				<-errCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return errWg.Wait()
		},
	}
}

// buildRouter 初始化基础设施并按优先级装配各业务模块
func buildRouter(cfg config.Config) (*gin.Engine, func(), error) {
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		return nil, nil, err
	}
	sqlxDB, err := database.NewSQLX(db)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = rdb.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	if err := uploader.InitUploader(cfg.OSS); err != nil {
		logger.Log.Warn("uploader disabled", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.MetricsMiddleware(metrics.GetGlobalCollector()),
		middleware.SecurityHeadersMiddleware(),
		middleware.TimeoutMiddleware(cfg.Server.RequestTimeout),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"},
			ExposeHeaders:   []string{"X-Trace-ID"},
			MaxAge:          12 * time.Hour,
		}),
	)

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "redis unavailable")
			return
		}
		stats, err := database.PoolStats(db)
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "database unavailable")
			return
		}
		response.Success(c, gin.H{"status": "ok", "dbOpenConnections": stats.OpenConnections})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// promhttp 自带压缩，gzip 只挂在之后注册的业务路由上
	if cfg.Server.Gzip {
		r.Use(middleware.GzipMiddleware())
	}

	modCtx := &registry.ModuleContext{
		DB:     db,
		SQLX:   sqlxDB,
		Redis:  rdb,
		Router: r,
		Cache:  caching.NewCacheRedis(rdb, true),
		Locker: lock.NewRedisLocker(rdb, cfg.Reward.CouponLockTTL),
		Hub:    realtime.NewHub(rdb, cfg.Realtime.ChannelPrefix),
	}
	if err := registry.InitModules(modCtx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return r, cleanup, nil
}
