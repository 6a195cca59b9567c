package auth

import (
	"errors"
	"fmt"
)

// Code is the stable identifier attached to every provider failure. Handlers
// translate codes into the fixed user-facing vocabulary via Message; clients
// branch on the code, never on the message text.
type Code string

const (
	CodeInvalidEmail         Code = "invalid-email"
	CodeUserDisabled         Code = "user-disabled"
	CodeUserNotFound         Code = "user-not-found"
	CodeWrongPassword        Code = "wrong-password"
	CodeInvalidCredential    Code = "invalid-credential"
	CodeEmailAlreadyInUse    Code = "email-already-in-use"
	CodeWeakPassword         Code = "weak-password"
	CodeTooManyRequests      Code = "too-many-requests"
	CodeNetworkRequestFailed Code = "network-request-failed"
	CodePopupClosedByUser    Code = "popup-closed-by-user"
	CodePopupBlocked         Code = "popup-blocked"
	CodeInvalidAPIKey        Code = "invalid-api-key"
	CodeRequiresRecentLogin  Code = "requires-recent-login"
	CodeExpiredActionCode    Code = "expired-action-code"
	CodeInvalidActionCode    Code = "invalid-action-code"
)

// Error is a provider failure carrying a Code and an optional cause.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError wraps cause with a provider code. cause may be nil.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

// CodeOf extracts the provider code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given provider code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// fallbackMessage is shown for any code outside the fixed vocabulary.
const fallbackMessage = "Something went wrong. Please try again."

// messages is the fixed user-facing vocabulary keyed by provider code. The
// credential trio (user-not-found, wrong-password, invalid-credential) shares
// one message so responses never reveal whether an email is registered.
var messages = map[Code]string{
	CodeInvalidEmail:         "Please enter a valid email address.",
	CodeUserDisabled:         "This account has been disabled.",
	CodeUserNotFound:         "Invalid email or password.",
	CodeWrongPassword:        "Invalid email or password.",
	CodeInvalidCredential:    "Invalid email or password.",
	CodeEmailAlreadyInUse:    "An account with this email already exists.",
	CodeWeakPassword:         "Password should be at least 6 characters.",
	CodeTooManyRequests:      "Too many attempts. Please try again later.",
	CodeNetworkRequestFailed: "Network error. Please check your connection and try again.",
	CodePopupBlocked:         "Sign-in window was blocked. Please allow popups and try again.",
	CodeInvalidAPIKey:        "Invalid API key.",
	CodeRequiresRecentLogin:  "Please sign in again to complete this action.",
	CodeExpiredActionCode:    "This link has expired. Please request a new one.",
	CodeInvalidActionCode:    "This link is invalid. Please request a new one.",
}

// Message returns the user-facing message for err. Codes outside the fixed
// vocabulary fall back to a generic message. A popup cancellation returns ""
// because it is not an error: nothing is shown and nothing is stored.
func Message(err error) string {
	if err == nil {
		return ""
	}
	code := CodeOf(err)
	if code == CodePopupClosedByUser {
		return ""
	}
	if msg, ok := messages[code]; ok {
		return msg
	}
	return fallbackMessage
}

// IsNonError reports whether err represents a user cancellation that should
// produce no toast and no stored message.
func IsNonError(err error) bool {
	return IsCode(err, CodePopupClosedByUser)
}
