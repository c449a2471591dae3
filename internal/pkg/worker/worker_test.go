package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flakySender struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	delivered []string
}

func (s *flakySender) PushToAccount(accountID, title, body string, ext map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("gateway timeout")
	}
	s.delivered = append(s.delivered, accountID)
	return nil
}

func (s *flakySender) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, append([]string(nil), s.delivered...)
}

func TestWorkerPoolRetriesUntilDelivered(t *testing.T) {
	sender := &flakySender{failures: 2}
	pool := NewWorkerPool(sender, 1, 10)
	pool.RetryDelay = time.Millisecond
	pool.Start()

	assert.True(t, pool.AddTask(PushTask{AccountID: "u-1", Title: "payback"}))

	assert.Eventually(t, func() bool {
		_, delivered := sender.snapshot()
		return len(delivered) == 1
	}, time.Second, 5*time.Millisecond)

	attempts, _ := sender.snapshot()
	assert.Equal(t, 3, attempts)
}

func TestWorkerPoolGivesUpAfterMaxRetry(t *testing.T) {
	sender := &flakySender{failures: 100}
	pool := NewWorkerPool(sender, 1, 10)
	pool.RetryDelay = time.Millisecond
	pool.MaxRetry = 2
	pool.Start()

	pool.AddTask(PushTask{AccountID: "u-2"})

	assert.Eventually(t, func() bool {
		attempts, _ := sender.snapshot()
		return attempts == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	attempts, delivered := sender.snapshot()
	assert.Equal(t, 3, attempts)
	assert.Empty(t, delivered)
}
