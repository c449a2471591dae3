package realtime

import (
	"context"
	"encoding/json"
	"time"

	"reward_engine/internal/pkg/events"
	"reward_engine/pkg/logger"

	"github.com/gojek/heimdall/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream *redis.PubSub 满足该接口
type Stream interface {
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}

// DialFunc 订阅指定频道
type DialFunc func(ctx context.Context, channels ...string) (Stream, error)

// RedisDialer 订阅成功确认后才返回
func RedisDialer(rdb *redis.Client) DialFunc {
	return func(ctx context.Context, channels ...string) (Stream, error) {
		ps := rdb.Subscribe(ctx, channels...)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		return ps, nil
	}
}

// Subscriber 断线后指数退避重连，重连成功后调用 Resync 重新拉取当前状态
type Subscriber struct {
	Dial      DialFunc
	Channels  []string
	OnMessage func(ctx context.Context, payload events.Payload)
	Resync    func(ctx context.Context) error
	Sleep     func(ctx context.Context, d time.Duration) error

	min, max time.Duration
	backoff  heimdall.Backoff
}

func NewSubscriber(dial DialFunc, channels []string, min, max time.Duration) *Subscriber {
	return &Subscriber{
		Dial:     dial,
		Channels: channels,
		Sleep:    sleep,
		min:      min,
		max:      max,
		backoff:  heimdall.NewExponentialBackoff(min, max, 2, min/4),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay 第 attempt 次重连前的等待时间，限定在 [min, max]
func (s *Subscriber) Delay(attempt int) time.Duration {
	d := s.backoff.Next(attempt)
	if d < s.min {
		return s.min
	}
	if d > s.max {
		return s.max
	}
	return d
}

// Run 阻塞直到 ctx 结束
func (s *Subscriber) Run(ctx context.Context) error {
	attempt := 0
	reconnecting := false
	for {
		stream, err := s.Dial(ctx, s.Channels...)
		if err == nil {
			if reconnecting && s.Resync != nil {
				if rerr := s.Resync(ctx); rerr != nil {
					logger.Log.Warn("realtime resync failed", zap.Error(rerr))
				}
			}
			var received int
			received, err = s.consume(ctx, stream)
			_ = stream.Close()
			if received > 0 {
				attempt = 0
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := s.Delay(attempt)
		logger.Log.Warn("realtime subscription dropped",
			zap.Strings("channels", s.Channels),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if serr := s.Sleep(ctx, delay); serr != nil {
			return serr
		}
		attempt++
		reconnecting = true
	}
}

func (s *Subscriber) consume(ctx context.Context, stream Stream) (int, error) {
	received := 0
	for {
		msg, err := stream.ReceiveMessage(ctx)
		if err != nil {
			return received, err
		}
		received++

		var payload events.Payload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			logger.Log.Warn("drop malformed realtime message", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if s.OnMessage != nil {
			s.OnMessage(ctx, payload)
		}
	}
}
