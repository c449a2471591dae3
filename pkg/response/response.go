package response

import (
	"errors"
	"net/http"

	"reward_engine/pkg/errs"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`    // 业务码
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data"`    // 数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// Fail 业务失败响应 (HTTP 200, 业务码非 0)
func Fail(c *gin.Context, errCode int, msg string) {
	c.JSON(http.StatusOK, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// FromError 将领域错误映射为响应。
// 幂等短路 (already submitted/verified/paid/exists) 走 Fail，权限与校验失败走 4xx
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrAlreadySubmitted):
		Fail(c, ErrAlreadySubmitted, "already submitted")
	case errors.Is(err, errs.ErrAlreadyVerified):
		Fail(c, ErrAlreadyVerified, "already verified")
	case errors.Is(err, errs.ErrAlreadyPaid):
		Fail(c, ErrAlreadyPaid, "already paid")
	case errors.Is(err, errs.ErrAlreadyExists):
		Fail(c, ErrReferralExists, "already exists")
	case errors.Is(err, errs.ErrNotFound):
		Error(c, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		Error(c, http.StatusForbidden, ErrNoPermission, err.Error())
	case errors.Is(err, errs.ErrInvalidProof):
		Error(c, http.StatusBadRequest, ErrInvalidProof, err.Error())
	case errors.Is(err, errs.ErrInvalidArgument):
		Error(c, http.StatusBadRequest, ErrInvalidParam, err.Error())
	case errors.Is(err, errs.ErrInvalidTransition):
		Error(c, http.StatusConflict, ErrInvalidTransition, err.Error())
	case errors.Is(err, errs.ErrSelfReferral):
		Error(c, http.StatusBadRequest, ErrSelfReferral, err.Error())
	case errors.Is(err, errs.ErrInvalidCode):
		Error(c, http.StatusBadRequest, ErrInvalidCode, err.Error())
	case errors.Is(err, errs.ErrNotVerified):
		Error(c, http.StatusConflict, ErrNotVerified, err.Error())
	default:
		Error(c, http.StatusInternalServerError, ErrServerInternal, err.Error())
	}
}
