package logger

import (
	"go.uber.org/zap"
)

// Log 全局日志实例，Init 之前为 Nop，保证测试和工具命令可以直接调用
var Log = zap.NewNop()

// Init 根据运行环境初始化 zap
func Init(env string) error {
	var (
		l   *zap.Logger
		err error
	)
	if env == "" || env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// Sync 刷新缓冲
func Sync() {
	_ = Log.Sync()
}
