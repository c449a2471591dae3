package service

import (
	"context"
	"fmt"
	"time"

	"reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/caching"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/security"

	"go.uber.org/zap"
)

// 缓存键常量
const (
	UserCacheKeyPrefix = "user:"
	UserCacheTTL       = 10 * time.Minute
)

func userCacheKey(id string) string {
	return fmt.Sprintf("%s%s", UserCacheKeyPrefix, id)
}

// UserReader 按 ID 读取用户
type UserReader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// CachedUserLookup 其他模块查用户所属门店时走缓存。
// 缓存里的经验值和余额可能过期，只能用于归属判断
type CachedUserLookup struct {
	repo  UserReader
	cache caching.Cache
}

func NewCachedUserLookup(repo UserReader, cache caching.Cache) *CachedUserLookup {
	if cache == nil {
		cache = caching.Noop{}
	}
	return &CachedUserLookup{repo: repo, cache: cache}
}

func (l *CachedUserLookup) GetByID(ctx context.Context, id string) (*model.User, error) {
	return caching.UseCache(ctx, l.cache, userCacheKey(id), UserCacheTTL, func() (*model.User, error) {
		return l.repo.GetByID(ctx, id)
	})
}

// CachedUserService 修改用户后清除缓存，读取仍然直接查库
type CachedUserService struct {
	UserService
	cache caching.Cache
}

// NewCachedUserService 创建带缓存失效的用户服务
func NewCachedUserService(inner UserService, cache caching.Cache) UserService {
	if cache == nil {
		cache = caching.Noop{}
	}
	return &CachedUserService{UserService: inner, cache: cache}
}

func (s *CachedUserService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userCacheKey(userID)); err != nil {
		logger.Log.Warn("failed to invalidate user cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CachedUserService) UpdateProfile(ctx context.Context, userID, name string) (*model.User, error) {
	user, err := s.UserService.UpdateProfile(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return user, nil
}

// DeleteUser 软删除后缓存里不能再查到该用户
func (s *CachedUserService) DeleteUser(ctx context.Context, actor security.Permissions, id string) error {
	if err := s.UserService.DeleteUser(ctx, actor, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}
