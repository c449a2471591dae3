package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户模块错误 100xx
	ErrUserExists   = 10001
	ErrUserNotFound = 10002
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 优惠券模块错误 200xx
	ErrCouponNotFound   = 20001
	ErrCouponOutOfStock = 20002
	ErrCouponClaimed    = 20003

	// 任务/结算模块错误 300xx
	ErrNotFound          = 30001
	ErrInvalidProof      = 30002
	ErrAlreadySubmitted  = 30003
	ErrAlreadyVerified   = 30004
	ErrInvalidTransition = 30005
	ErrAlreadyPaid       = 30006

	// 推荐模块错误 400xx
	ErrSelfReferral   = 40001
	ErrInvalidCode    = 40002
	ErrNotVerified    = 40003
	ErrReferralExists = 40004

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
