package registry

import (
	"sort"

	"reward_engine/internal/pkg/caching"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/lock"
	"reward_engine/internal/pkg/realtime"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB     *gorm.DB
	SQLX   *sqlx.DB // 与 DB 共享同一个 *sql.DB，用于只读统计查询
	Redis  *redis.Client
	Router *gin.Engine

	Cache  caching.Cache
	Locker lock.Locker
	Hub    *realtime.Hub // 同时实现 events.Publisher
}

// Events 事件发布器，Hub 未初始化时丢弃事件
func (c *ModuleContext) Events() events.Publisher {
	if c.Hub == nil {
		return events.Nop
	}
	return c.Hub
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	// 例如：notification 模块要在其他模块发布事件前注册 Hub 的 sink
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// sortedModules 按优先级排序，优先级相同时按名称保证顺序稳定
func sortedModules() []Module {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})
	return modules
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	for _, module := range sortedModules() {
		if err := module.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}
