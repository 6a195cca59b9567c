package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestMessage_CredentialCodesShareOneMessage(t *testing.T) {
	// None of the three credential failures may reveal which part was wrong.
	for _, code := range []Code{CodeUserNotFound, CodeWrongPassword, CodeInvalidCredential} {
		got := Message(NewError(code, nil))
		if got != "Invalid email or password." {
			t.Errorf("Message(%s) = %q, want %q", code, got, "Invalid email or password.")
		}
	}
}

func TestMessage_KnownCodes(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{CodeInvalidEmail, "Please enter a valid email address."},
		{CodeUserDisabled, "This account has been disabled."},
		{CodeEmailAlreadyInUse, "An account with this email already exists."},
		{CodeWeakPassword, "Password should be at least 6 characters."},
		{CodeTooManyRequests, "Too many attempts. Please try again later."},
		{CodeNetworkRequestFailed, "Network error. Please check your connection and try again."},
	}
	for _, tc := range cases {
		if got := Message(NewError(tc.code, nil)); got != tc.want {
			t.Errorf("Message(%s) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestMessage_UnknownCodeFallsBack(t *testing.T) {
	if got := Message(NewError(Code("quota-exceeded"), nil)); got != fallbackMessage {
		t.Errorf("Message for unknown code = %q, want fallback", got)
	}
}

func TestMessage_PlainErrorFallsBack(t *testing.T) {
	if got := Message(errors.New("boom")); got != fallbackMessage {
		t.Errorf("Message for plain error = %q, want fallback", got)
	}
}

func TestMessage_Nil(t *testing.T) {
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q, want empty", got)
	}
}

func TestMessage_PopupClosedIsSilent(t *testing.T) {
	err := NewError(CodePopupClosedByUser, nil)
	if got := Message(err); got != "" {
		t.Errorf("popup-closed must produce no message, got %q", got)
	}
	if !IsNonError(err) {
		t.Error("popup-closed should be classified as a non-error")
	}
	if IsNonError(NewError(CodeWrongPassword, nil)) {
		t.Error("wrong-password must not be classified as a non-error")
	}
}

func TestCodeOf(t *testing.T) {
	err := NewError(CodeUserDisabled, errors.New("row flag set"))
	if got := CodeOf(err); got != CodeUserDisabled {
		t.Errorf("CodeOf = %s, want %s", got, CodeUserDisabled)
	}

	wrapped := fmt.Errorf("sign in: %w", err)
	if got := CodeOf(wrapped); got != CodeUserDisabled {
		t.Errorf("CodeOf(wrapped) = %s, want %s", got, CodeUserDisabled)
	}

	if got := CodeOf(errors.New("boom")); got != Code("") {
		t.Errorf("CodeOf(plain) = %s, want empty", got)
	}
}

func TestIsCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(CodeExpiredActionCode, nil))
	if !IsCode(err, CodeExpiredActionCode) {
		t.Error("IsCode should see through wrapping")
	}
	if IsCode(err, CodeInvalidActionCode) {
		t.Error("IsCode must not match a different code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError(CodeNetworkRequestFailed, cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestError_ErrorString(t *testing.T) {
	if got := NewError(CodeWeakPassword, nil).Error(); got != string(CodeWeakPassword) {
		t.Errorf("bare code Error() = %q", got)
	}
	withCause := NewError(CodeWeakPassword, errors.New("under 6 chars")).Error()
	if withCause == string(CodeWeakPassword) {
		t.Error("Error() should include the cause when present")
	}
}
