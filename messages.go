package authcore

import "errors"

// The engine's callers render errors to end users in Vietnamese. Every
// sentinel maps to one fixed string so clients never see internal detail,
// and credential and enumeration failures share a single message.
var userMessages = map[error]string{
	ErrInvalidCredentials:       "Thông tin đăng nhập không chính xác",
	ErrUserNotFound:             "Thông tin đăng nhập không chính xác",
	ErrTooManyAttempts:          "Bạn đã thử quá nhiều lần. Vui lòng thử lại sau",
	ErrAccountUnverified:        "Tài khoản chưa được xác minh. Vui lòng kiểm tra email của bạn",
	ErrTwoFactorRequired:        "Vui lòng nhập mã xác thực hai yếu tố",
	ErrSessionExpired:           "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại",
	ErrInvalidCode:              "Mã xác thực không hợp lệ",
	ErrTwoFactorAlreadyEnabled:  "Xác thực hai yếu tố đã được bật",
	ErrTwoFactorNotEnabled:      "Xác thực hai yếu tố chưa được bật",
	ErrTwoFactorNotConfigured:   "Xác thực hai yếu tố chưa được thiết lập",
	ErrTOTPRateLimited:          "Bạn đã nhập sai mã quá nhiều lần. Vui lòng thử lại sau",
	ErrAttemptsExceeded:         "Bạn đã nhập sai mã quá nhiều lần. Vui lòng đăng nhập lại",
	ErrBackupCodeRateLimited:    "Bạn đã nhập sai mã dự phòng quá nhiều lần. Vui lòng thử lại sau",
	ErrBackupCodesNotConfigured: "Tài khoản chưa có mã dự phòng",
	ErrInvalidRefreshToken:      "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại",
	ErrRefreshReuse:             "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại",
	ErrRefreshRateLimited:       "Bạn đã thử quá nhiều lần. Vui lòng thử lại sau",
	ErrUnauthorized:             "Bạn cần đăng nhập để tiếp tục",
	ErrBackendUnavailable:       "Hệ thống đang bận. Vui lòng thử lại sau",
	ErrEngineNotReady:           "Hệ thống đang bận. Vui lòng thử lại sau",
}

const genericUserMessage = "Đã xảy ra lỗi. Vui lòng thử lại sau"

// twoFactorPrompt is returned in LoginResult.Prompt when step one of a
// two-factor login succeeds.
const twoFactorPrompt = "Vui lòng nhập mã xác thực hai yếu tố"

// UserMessage translates an engine error into the Vietnamese string shown
// to end users. Unknown errors collapse to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return genericUserMessage
}
