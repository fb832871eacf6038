package xero

import (
	"errors"
	"fmt"
)

// ErrConfig indicates missing OAuth client configuration.
var ErrConfig = errors.New("client_id and redirect_uri must be configured")

// AuthCode classifies authentication failures.
type AuthCode string

const (
	AuthExpiredCode       AuthCode = "expired_code"
	AuthInvalidClient     AuthCode = "invalid_client"
	AuthInvalidRequest    AuthCode = "invalid_request"
	AuthRateLimited       AuthCode = "rate_limited"
	AuthRemoteServerError AuthCode = "remote_server_error"
	AuthRefreshFailed     AuthCode = "refresh_failed"
	AuthUnauthorized      AuthCode = "unauthorized"
	AuthUnknown           AuthCode = "unknown"
)

// AuthError is a classified authentication failure.
type AuthError struct {
	Code   AuthCode
	Status int
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth error (%s): %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("auth error (%s)", e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthCode reports whether err is an AuthError with the given code.
func IsAuthCode(err error, code AuthCode) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}

// GatewayCode classifies non-auth API failures.
type GatewayCode string

const (
	GatewayBadRequest  GatewayCode = "bad_request"
	GatewayForbidden   GatewayCode = "forbidden"
	GatewayRateLimited GatewayCode = "rate_limited"
	GatewayServerError GatewayCode = "server_error"
	GatewayTimeout     GatewayCode = "timeout"
	GatewayUnknown     GatewayCode = "unknown"
)

// GatewayError is a classified API call failure carrying the raw response.
type GatewayError struct {
	Code   GatewayCode
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway error (%s): status %d: %s", e.Code, e.Status, e.Body)
	}
	return fmt.Sprintf("gateway error (%s): %v", e.Code, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayCode reports whether err is a GatewayError with the given code.
func IsGatewayCode(err error, code GatewayCode) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == code
}

// classifyStatus maps a non-2xx API status to a GatewayError.
func classifyStatus(status int, body string) *GatewayError {
	var code GatewayCode
	switch {
	case status == 400:
		code = GatewayBadRequest
	case status == 403:
		code = GatewayForbidden
	case status == 429:
		code = GatewayRateLimited
	case status >= 500:
		code = GatewayServerError
	default:
		code = GatewayUnknown
	}
	return &GatewayError{Code: code, Status: status, Body: body}
}

// classifyTokenError maps an OAuth token endpoint failure to an AuthError.
// The error body follows RFC 6749 ({"error": "...", "error_description": ...}).
func classifyTokenError(status int, oauthError, description string) *AuthError {
	switch {
	case status == 400 && oauthError == "invalid_grant":
		return &AuthError{Code: AuthExpiredCode, Status: status,
			Detail: "authorization code has expired or already been used"}
	case status == 400 && oauthError == "invalid_client":
		return &AuthError{Code: AuthInvalidClient, Status: status,
			Detail: "invalid client id or client secret"}
	case status == 400 && oauthError == "invalid_request":
		return &AuthError{Code: AuthInvalidRequest, Status: status,
			Detail: "invalid authorization request, check redirect URI"}
	case status == 400:
		return &AuthError{Code: AuthInvalidRequest, Status: status, Detail: description}
	case status == 401 || status == 403:
		return &AuthError{Code: AuthInvalidClient, Status: status,
			Detail: "client not authorized"}
	case status == 429:
		return &AuthError{Code: AuthRateLimited, Status: status,
			Detail: "rate limit exceeded, try again later"}
	case status >= 500:
		return &AuthError{Code: AuthRemoteServerError, Status: status,
			Detail: fmt.Sprintf("authorization server error (%d)", status)}
	default:
		return &AuthError{Code: AuthUnknown, Status: status, Detail: description}
	}
}
