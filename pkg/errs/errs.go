package errs

import "errors"

// 领域错误。调用方通过 errors.Is 判断，具体上下文用 fmt.Errorf("%w: ...") 包装
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidProof      = errors.New("invalid proof")
	ErrAlreadyVerified   = errors.New("already verified")
	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrAlreadyPaid       = errors.New("already paid")
	ErrAlreadyExists     = errors.New("already exists")
	ErrSelfReferral      = errors.New("self referral")
	ErrInvalidCode       = errors.New("invalid referral code")
	ErrNotVerified       = errors.New("referral not verified")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// IsBenign 幂等短路类错误：重复请求是合理的客户端重试，不视为异常
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyVerified) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrAlreadyExists)
}
