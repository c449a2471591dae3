package worker

import (
	"sync"
	"time"

	"reward_engine/pkg/logger"

	"go.uber.org/zap"
)

// PushTask 一条待投递的推送
type PushTask struct {
	AccountID string
	Title     string
	Body      string
	Ext       map[string]string
	Retry     int // 重试次数
}

// Sender 推送通道，由 push.PushService 实现
type Sender interface {
	PushToAccount(accountID string, title, body string, extParameters map[string]string) error
}

type WorkerPool struct {
	TaskQueue  chan PushTask
	RetryQueue chan PushTask // 重试队列
	Sender     Sender
	WorkerNum  int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 每次重试递增的等待时间

	startOnce sync.Once
}

func NewWorkerPool(sender Sender, workerNum int, bufferSize int) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize < 2 {
		bufferSize = 2
	}
	return &WorkerPool{
		TaskQueue:  make(chan PushTask, bufferSize),
		RetryQueue: make(chan PushTask, bufferSize/2),
		Sender:     sender,
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
		RetryDelay: time.Second,
	}
}

func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.WorkerNum; i++ {
			go p.worker(i)
		}
		// 启动重试处理协程
		go p.retryWorker()
		logger.Log.Info("push worker pool started", zap.Int("workers", p.WorkerNum))
	})
}

func (p *WorkerPool) worker(id int) {
	for task := range p.TaskQueue {
		err := p.Sender.PushToAccount(task.AccountID, task.Title, task.Body, task.Ext)
		if err == nil {
			continue
		}
		logger.Log.Warn("push delivery failed",
			zap.Int("worker", id),
			zap.String("account", task.AccountID),
			zap.Int("retry", task.Retry),
			zap.Error(err))

		// 如果未达到最大重试次数，加入重试队列
		if task.Retry >= p.MaxRetry {
			p.logFailedTask(task, err)
			continue
		}
		task.Retry++
		select {
		case p.RetryQueue <- task:
		default:
			p.logFailedTask(task, err)
		}
	}
}

func (p *WorkerPool) retryWorker() {
	for task := range p.RetryQueue {
		// 延迟重试，避免立即重试
		time.Sleep(time.Duration(task.Retry) * p.RetryDelay)

		select {
		case p.TaskQueue <- task:
		default:
			p.logFailedTask(task, nil)
		}
	}
}

// logFailedTask 推送是尽力而为，放弃的任务只记录日志
func (p *WorkerPool) logFailedTask(task PushTask, err error) {
	logger.Log.Error("push task dropped",
		zap.String("account", task.AccountID),
		zap.String("title", task.Title),
		zap.Int("retry", task.Retry),
		zap.Error(err))
}

// AddTask 入队，队列满时丢弃，不阻塞调用方
func (p *WorkerPool) AddTask(task PushTask) bool {
	select {
	case p.TaskQueue <- task:
		return true
	default:
		p.logFailedTask(task, nil)
		return false
	}
}
