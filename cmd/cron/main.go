package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	couponDomain "reward_engine/internal/domain/coupon"
	notifRepository "reward_engine/internal/domain/notification/repository"
	notifService "reward_engine/internal/domain/notification/service"
	"reward_engine/internal/domain/settlement"
	"reward_engine/internal/pkg/caching"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/lock"
	"reward_engine/internal/pkg/realtime"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/database"
	"reward_engine/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "cronjob",
		Usage: "reward engine background jobs",
		Before: func(*cli.Context) error {
			config.LoadConfig()
			return logger.Init(config.GlobalConfig.App.Env)
		},
		After: func(*cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			commandCronjob(),
			commandReconcile(),
			commandExpireCoupons(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// jobs 定时任务依赖，不注册路由
type jobs struct {
	ctx     *registry.ModuleContext
	cleanup func()
}

func newJobs() (*jobs, error) {
	cfg := config.GlobalConfig
	db, err := database.InitDatabase(cfg.Database, false)
	if err != nil {
		return nil, err
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}
	// 补结算产生的事件同样落通知表
	hub := realtime.NewHub(rdb, cfg.Realtime.ChannelPrefix)
	hub.AddSink(notifService.NewLedgerSink(notifRepository.NewNotificationRepository(db)))

	return &jobs{
		ctx: &registry.ModuleContext{
			DB:     db,
			Redis:  rdb,
			Cache:  caching.NewCacheRedis(rdb, false),
			Locker: lock.NewRedisLocker(rdb, cfg.Reward.CouponLockTTL),
			Hub:    hub,
		},
		cleanup: func() {
			_ = rdb.Close()
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

func (j *jobs) reconcile(ctx context.Context, limit int) error {
	result, err := settlement.BuildService(j.ctx).Reconcile(ctx, limit)
	if err != nil {
		return err
	}
	logger.Log.Info("reconcile finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("settled", result.Settled),
		zap.Int("failed", result.Failed))
	return nil
}

func (j *jobs) expireCoupons(ctx context.Context) error {
	n, err := couponDomain.BuildService(j.ctx).ExpireDue(ctx, time.Now())
	if err != nil {
		return err
	}
	logger.Log.Info("coupon expiry sweep finished", zap.Int64("expired", n))
	return nil
}

func commandCronjob() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "run scheduled jobs until interrupted",
		Action: func(c *cli.Context) error {
			j, err := newJobs()
			if err != nil {
				return err
			}
			defer j.cleanup()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := config.GlobalConfig.Cron
			runner := cron.New(
				cron.WithSeconds(),
				cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
			)
			if _, err := runner.AddFunc(cfg.ReconcileSpec, func() {
				if err := j.reconcile(ctx, cfg.ReconcileBatch); err != nil {
					logger.Log.Error("reconcile job failed", zap.Error(err))
				}
			}); err != nil {
				return err
			}
			if _, err := runner.AddFunc(cfg.CouponExpireSpec, func() {
				if err := j.expireCoupons(ctx); err != nil {
					logger.Log.Error("coupon expiry job failed", zap.Error(err))
				}
			}); err != nil {
				return err
			}

			runner.Start()
			logger.Log.Info("cronjob started",
				zap.String("reconcile", cfg.ReconcileSpec),
				zap.String("coupon_expire", cfg.CouponExpireSpec))
			<-ctx.Done()
			<-runner.Stop().Done()
			return nil
		},
	}
}

func commandReconcile() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "settle verified participations that have no payback yet",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 100},
		},
		Action: func(c *cli.Context) error {
			j, err := newJobs()
			if err != nil {
				return err
			}
			defer j.cleanup()
			return j.reconcile(c.Context, c.Int("limit"))
		},
	}
}

func commandExpireCoupons() *cli.Command {
	return &cli.Command{
		Name:  "expire-coupons",
		Usage: "mark unused coupons past their expiry as expired",
		Action: func(c *cli.Context) error {
			j, err := newJobs()
			if err != nil {
				return err
			}
			defer j.cleanup()
			return j.expireCoupons(c.Context)
		},
	}
}
