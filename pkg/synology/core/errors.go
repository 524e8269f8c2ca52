/*
 * Copyright 2018 Ji-Young Park(jiyoung.park.dev@gmail.com)
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotJSON is returned when a NAS or relay answers with something that
	// is not a JSON document, e.g. the relay HTML error page
	ErrNotJSON = errors.New("response is not JSON")
	// ErrSessionExpired matches APIErrors whose code means the sid is no longer valid
	ErrSessionExpired = errors.New("session expired")
	// ErrNoSession is returned when an operation needs a session and none is live
	ErrNoSession = errors.New("no live session")
)

func errorToDesc(code int) string {
	codeList := map[int]string{
		100: "Unknown error",
		101: "Invalid parameter",
		102: "The requested API does not exist",
		103: "The requested method does not exist",
		104: "The requested version does not support the functionality",
		105: "The logged in session does not have permission",
		106: "Session timeout",
		107: "Session interrupted by duplicate login",
		119: "SID not found",
	}

	return codeList[code]
}

func loginErrorToDesc(code int) string {
	codeList := map[int]string{
		400: "No such account or incorrect password",
		401: "Account disabled",
		402: "Permission denied",
		403: "2-step verification code required",
		404: "Failed to authenticate 2-step verification code",
		405: "App portal incorrect.",
		406: "OTP code enforced.",
		407: "Max Tries (if auto blocking is set to true).",
		408: "Password Expired Can not Change.",
		409: "Password Expired.",
		410: "Password must change (when first time use or after reset password by admin).",
		411: "Account Locked (when account max try exceed).",
	}

	result, ok := codeList[code]
	if ok {
		return result
	}
	return errorToDesc(code)
}

/************************************************************
 * Code lookup
 ************************************************************/

// AuthErrorKind classifies a failed login
type AuthErrorKind int

const (
	AuthUnknown AuthErrorKind = iota
	AuthInvalidCredentials
	AuthNeedsOtp
	AuthInvalidOtp
	AuthAccountDisabled
	AuthPermissionDenied
)

var authKindNames = map[AuthErrorKind]string{
	AuthUnknown:            "unknown",
	AuthInvalidCredentials: "invalid_credentials",
	AuthNeedsOtp:           "needs_otp",
	AuthInvalidOtp:         "invalid_otp",
	AuthAccountDisabled:    "account_disabled",
	AuthPermissionDenied:   "permission_denied",
}

func (k AuthErrorKind) String() string {
	if name, ok := authKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AuthErrorKind(%d)", int(k))
}

// ParseAuthErrorKind parses the names used in the authErrorCodes config map
func ParseAuthErrorKind(name string) (AuthErrorKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range authKindNames {
		if n == name {
			return kind, nil
		}
	}
	return AuthUnknown, fmt.Errorf("unknown auth error kind %q", name)
}

// CodeTable maps NAS error codes to error kinds. The codes moved between DSM
// releases so both maps can be overridden from the config.
type CodeTable struct {
	Auth    map[int]AuthErrorKind
	Session map[int]bool
}

// DefaultCodeTable returns the DSM 6/7 codes
func DefaultCodeTable() *CodeTable {
	return &CodeTable{
		Auth: map[int]AuthErrorKind{
			400: AuthInvalidCredentials,
			401: AuthAccountDisabled,
			402: AuthPermissionDenied,
			403: AuthNeedsOtp,
			404: AuthInvalidOtp,
		},
		Session: map[int]bool{
			106: true,
			107: true,
			119: true,
		},
	}
}

// Override merges config overrides into the table. A non-empty session list
// replaces the default session codes.
func (t *CodeTable) Override(auth map[int]string, session []int) error {
	for code, name := range auth {
		kind, err := ParseAuthErrorKind(name)
		if err != nil {
			return fmt.Errorf("auth error code %d: %w", code, err)
		}
		t.Auth[code] = kind
	}

	if len(session) > 0 {
		t.Session = make(map[int]bool, len(session))
		for _, code := range session {
			t.Session[code] = true
		}
	}
	return nil
}

// AuthKind returns the kind for a login error code
func (t *CodeTable) AuthKind(code int) AuthErrorKind {
	if kind, ok := t.Auth[code]; ok {
		return kind
	}
	return AuthUnknown
}

// IsSessionError reports whether an entry.cgi code means the sid is gone
func (t *CodeTable) IsSessionError(code int) bool {
	return t.Session[code]
}

// SessionCodes returns the session codes in ascending order
func (t *CodeTable) SessionCodes() []int {
	codes := make([]int, 0, len(t.Session))
	for code := range t.Session {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

/************************************************************
 * Error taxonomy
 ************************************************************/

// APIError is an unsuccessful entry.cgi response
type APIError struct {
	API    string
	Method string
	Code   int

	expired bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Failed to %s %s: %s(%d)", e.Method, e.API, errorToDesc(e.Code), e.Code)
}

// Is lets errors.Is(err, ErrSessionExpired) match session error codes
func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && e.expired
}

// AuthError is a rejected login
type AuthError struct {
	Kind AuthErrorKind
	Code int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("Failed to login: %s: %s(%d)", e.Kind, loginErrorToDesc(e.Code), e.Code)
}

// NeedsOtp reports whether only an interactive OTP login can fix the error
func (e *AuthError) NeedsOtp() bool {
	return e.Kind == AuthNeedsOtp || e.Kind == AuthInvalidOtp
}

// TransportError is a request that never produced a usable API payload:
// network failure, timeout, non-2xx status or a non-JSON body
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResolutionError means no connection candidate answered with a valid API info payload
type ResolutionError struct {
	Address string
	Errors  []error
}

func (e *ResolutionError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("no reachable endpoint for %s", e.Address)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("no reachable endpoint for %s: %s", e.Address, strings.Join(msgs, "; "))
}

func (e *ResolutionError) Unwrap() []error {
	return e.Errors
}

// FetchErrorKind classifies a failed photo listing
type FetchErrorKind int

const (
	FetchSourceUnavailable FetchErrorKind = iota
	FetchMalformedResponse
)

func (k FetchErrorKind) String() string {
	if k == FetchMalformedResponse {
		return "malformed response"
	}
	return "source unavailable"
}

// FetchError is a failed photo listing
type FetchError struct {
	Kind   FetchErrorKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Failed to list photos from %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ProxyErrorKind classifies a failed thumbnail relay
type ProxyErrorKind int

const (
	ProxyUpstreamFailure ProxyErrorKind = iota
	ProxyMissingTarget
)

// ProxyError is a failed thumbnail relay, scoped to one image request
type ProxyError struct {
	Kind ProxyErrorKind
	Err  error
}

func (e *ProxyError) Error() string {
	if e.Kind == ProxyMissingTarget {
		return fmt.Sprintf("invalid proxy target: %v", e.Err)
	}
	return fmt.Sprintf("upstream failure: %v", e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}
