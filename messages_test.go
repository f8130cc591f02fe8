package authcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessageKnownErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrInvalidCredentials, "Thông tin đăng nhập không chính xác"},
		{ErrTooManyAttempts, "Bạn đã thử quá nhiều lần. Vui lòng thử lại sau"},
		{ErrInvalidCode, "Mã xác thực không hợp lệ"},
		{ErrSessionExpired, "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại"},
		{ErrUnauthorized, "Bạn cần đăng nhập để tiếp tục"},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestUserMessageEnumerationSafe(t *testing.T) {
	// Unknown accounts and wrong passwords must read identically.
	if UserMessage(ErrUserNotFound) != UserMessage(ErrInvalidCredentials) {
		t.Fatal("user-not-found and invalid-credentials messages differ")
	}
}

func TestUserMessageWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("confirm login: %w", ErrInvalidCode)
	if got := UserMessage(wrapped); got != UserMessage(ErrInvalidCode) {
		t.Fatalf("wrapped error lost its message: %q", got)
	}
}

func TestUserMessageFallbacks(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Fatalf("UserMessage(nil) = %q, want empty", got)
	}
	if got := UserMessage(errors.New("redis: broken pipe")); got != genericUserMessage {
		t.Fatalf("unknown error leaked detail: %q", got)
	}
}
