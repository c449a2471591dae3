package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Database: DatabaseConfig{Host: "localhost", User: "postgres", DBName: "reward"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		JWT:      JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
		Reward:   RewardConfig{ReferralThreshold: 3},
		Realtime: RealtimeConfig{BackoffMin: 2 * time.Second, BackoffMax: 30 * time.Second},
	}
}

func TestValidate(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.JWT.Secret = "short"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Database.Host = ""
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Redis.Addr = ""
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Realtime.BackoffMax = time.Second
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Reward.ReferralThreshold = 0
	assert.Error(t, c.Validate())
}
