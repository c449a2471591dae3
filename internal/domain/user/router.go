package user

import (
	"reward_engine/internal/domain/user/handler"
	"reward_engine/internal/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// setupRoutes 设置用户模块路由
func setupRoutes(r *gin.Engine, h *handler.UserHandler) {
	// 公开路由
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.LoginOrRegister) // 登录/注册
		authGroup.POST("/otp", h.SendOTP)           // 发送验证码
	}

	// 受保护的路由
	userGroup := r.Group("/users")
	userGroup.Use(middleware.AuthMiddleware())
	{
		userGroup.GET("/me", h.GetMe)
		userGroup.PUT("/me", h.UpdateMe)

		admin := userGroup.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("", h.GetUsers)
			admin.GET("/:id", h.GetUser)
			admin.POST("/:id/stores", h.AssignStore)
			admin.DELETE("/:id", h.DeleteUser)
		}
	}
}
