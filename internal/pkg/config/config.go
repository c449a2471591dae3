package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	App      AppConfig      `mapstructure:"app"`
	OSS      OSSConfig      `mapstructure:"oss"`
	Push     PushConfig     `mapstructure:"push"`
	Reward   RewardConfig   `mapstructure:"reward"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Gzip           bool          `mapstructure:"gzip"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Debug       bool   `mapstructure:"debug"`
	TestOTPCode string `mapstructure:"test_otp_code"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
	Workers         int    `mapstructure:"workers"`
	QueueSize       int    `mapstructure:"queue_size"`
}

// RewardConfig 奖励规则
type RewardConfig struct {
	ReferralBonus     int64         `mapstructure:"referral_bonus"`     // 推荐奖励金额 (KRW)
	ReferralThreshold int           `mapstructure:"referral_threshold"` // 推荐任务达标人数
	ReviewCouponID    string        `mapstructure:"review_coupon_id"`   // 评价任务发放的券模板
	ReviewCouponCap   int           `mapstructure:"review_coupon_cap"`  // 每人上限
	CouponLockTTL     time.Duration `mapstructure:"coupon_lock_ttl"`
}

// RealtimeConfig 实时推送
type RealtimeConfig struct {
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	BackoffMin    time.Duration `mapstructure:"backoff_min"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
}

// CronConfig 定时任务
type CronConfig struct {
	CouponExpireSpec string `mapstructure:"coupon_expire_spec"`
	ReconcileSpec    string `mapstructure:"reconcile_spec"`
	ReconcileBatch   int    `mapstructure:"reconcile_batch"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Reward.ReferralThreshold <= 0 {
		return errors.New("reward.referral_threshold must be positive")
	}
	if c.Realtime.BackoffMin <= 0 || c.Realtime.BackoffMax < c.Realtime.BackoffMin {
		return errors.New("realtime backoff bounds are invalid")
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.request_timeout", "10s")
	viper.SetDefault("server.gzip", true)
	viper.SetDefault("jwt.expire", 24)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("push.workers", 4)
	viper.SetDefault("push.queue_size", 1000)

	viper.SetDefault("reward.referral_bonus", 10000)
	viper.SetDefault("reward.referral_threshold", 3)
	viper.SetDefault("reward.review_coupon_cap", 1)
	viper.SetDefault("reward.coupon_lock_ttl", "8s")

	viper.SetDefault("realtime.channel_prefix", "reward")
	viper.SetDefault("realtime.backoff_min", "2s")
	viper.SetDefault("realtime.backoff_max", "30s")

	viper.SetDefault("cron.coupon_expire_spec", "0 */10 * * * *")
	viper.SetDefault("cron.reconcile_spec", "0 */5 * * * *")
	viper.SetDefault("cron.reconcile_batch", 100)
}

// LoadConfig 加载配置
func LoadConfig() {
	// 开发环境从 .env 读取，文件不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		GlobalConfig.Database.Password = password
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
