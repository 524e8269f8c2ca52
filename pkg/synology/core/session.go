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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/golang/glog"
	"github.com/google/go-querystring/query"

	"github.com/jparklab/synology-photos/pkg/synology/credential"
	"github.com/jparklab/synology-photos/pkg/synology/options"
)

/************************************************************
 * Session
 ************************************************************/

// Session is a logged in sid bound to the candidate it was obtained from
type Session struct {
	ID            string
	EstablishedAt time.Time
	Candidate     Candidate

	// DeviceID is the device token returned by an OTP login with
	// enable_device_token=yes, empty otherwise
	DeviceID string
}

/*

RESPONSE

+----------------+-----------+--------------+-------------------------------------------------------------------------+
| Name           | Value     | Availability | Description                                                             |
+----------------+-----------+--------------+-------------------------------------------------------------------------+
| sid            | <string>  | 2 and onward | Session ID, pass this value by HTTP argument "_sid" or Cookie argument. |
| did            | <string>  | 6 and onward | Device id, use to skip OTP checking.                                    |
+----------------+-----------+--------------+-------------------------------------------------------------------------+

*/

// loginData is the data of a successful login
type loginData struct {
	Sid string `json:"sid"`
	Did string `json:"did"`
}

/************************************************************
 * SessionManager
 ************************************************************/

// SessionManager logs in to the adopted candidate and owns the live session.
// The session is replaced by atomic swap so concurrent readers never observe
// a partially updated value.
type SessionManager struct {
	client  *Client
	options options.SynologyOptions

	current atomic.Pointer[Session]

	attempts uint
	delay    time.Duration
}

// NewSessionManager creates a SessionManager logging in with the given options
func NewSessionManager(client *Client, synoOptions options.SynologyOptions) *SessionManager {
	return &SessionManager{
		client:   client,
		options:  synoOptions,
		attempts: 3,
		delay:    time.Second,
	}
}

// SetRetry changes how often a login is retried on transport failures
func (m *SessionManager) SetRetry(attempts uint, delay time.Duration) {
	if attempts == 0 {
		attempts = 1
	}
	m.attempts = attempts
	m.delay = delay
}

// Options returns the login options
func (m *SessionManager) Options() options.SynologyOptions {
	return m.options
}

// Client returns the wire client
func (m *SessionManager) Client() *Client {
	return m.client
}

// Current returns the live session, or nil
func (m *SessionManager) Current() *Session {
	return m.current.Load()
}

// Invalidate drops s if it is still the live session
func (m *SessionManager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	if m.current.CompareAndSwap(s, nil) {
		glog.Infof("Discarded session established at %s via %s", s.EstablishedAt.Format(time.RFC3339), s.Candidate)
	}
}

// LoginWith performs one auth.cgi login against cand. Transport failures are
// retried; a rejected login is returned as *AuthError and never retried. The
// session is not stored, callers decide whether to adopt it.
func (m *SessionManager) LoginWith(ctx context.Context, cand Candidate, loginOptions options.SynologyOptions) (*Session, error) {
	v, err := query.Values(loginOptions)
	if err != nil {
		glog.Errorf("Failed parsing URL parameters: %v", err)
		return nil, err
	}

	var resp *responseData
	err = retry.Do(
		func() error {
			var doErr error
			resp, doErr = m.client.do(ctx, cand, AuthPath, v)
			return doErr
		},
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			glog.Warningf("Login attempt %d via %s failed: %v", n+1, cand, err)
		}),
	)
	if err != nil {
		return nil, lastError(err)
	}

	if !resp.Success {
		code := resp.Error.Code
		authErr := &AuthError{Kind: m.client.codes.AuthKind(code), Code: code}
		glog.Errorf("%v", authErr)
		return nil, authErr
	}

	var data loginData
	if raw, ok := resp.Data["sid"]; ok && raw != nil {
		if err := json.Unmarshal(*raw, &data.Sid); err != nil {
			return nil, fmt.Errorf("parse login sid: %w", err)
		}
	}
	if raw, ok := resp.Data["did"]; ok && raw != nil {
		_ = json.Unmarshal(*raw, &data.Did)
	}
	if data.Sid == "" {
		return nil, errors.New("login response has no sid")
	}

	return &Session{
		ID:            data.Sid,
		DeviceID:      data.Did,
		EstablishedAt: time.Now(),
		Candidate:     cand,
	}, nil
}

// Login logs in to cand, trying the device credential first when one is
// given. When the NAS rejects the device credential the login falls back to
// the password only. The resulting session becomes the live session.
func (m *SessionManager) Login(ctx context.Context, cand Candidate, dev *credential.DeviceCredential) (*Session, error) {
	base := m.options.WithoutDevice()

	var s *Session
	var err error

	if dev != nil {
		if !dev.MatchesHost(cand.Host()) {
			glog.Warningf("Device credential was issued by %s, logging in to %s", dev.ServerHost, cand.Host())
		}

		s, err = m.LoginWith(ctx, cand, base.WithDevice(dev.DeviceID, dev.DeviceName))

		var authErr *AuthError
		if err != nil && errors.As(err, &authErr) {
			glog.Warningf("Device credential rejected (%v), retrying with password only", authErr)
			s, err = m.LoginWith(ctx, cand, base)
		}
	} else {
		s, err = m.LoginWith(ctx, cand, base)
	}

	if err != nil {
		return nil, err
	}

	m.current.Store(s)
	glog.Infof("Logged in via %s", cand)

	return s, nil
}

// Logout ends the live session. It is best effort: failures are logged and
// swallowed, the NAS expires the sid on its own.
func (m *SessionManager) Logout(ctx context.Context) {
	m.LogoutSession(ctx, m.current.Swap(nil))
}

// LogoutSession ends s, e.g. a session returned by LoginWith that was never
// made the live session
func (m *SessionManager) LogoutSession(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	m.current.CompareAndSwap(s, nil)

	params := url.Values{
		"api":     {m.options.API},
		"version": {fmt.Sprintf("%d", m.options.LoginApiVersion)},
		"method":  {"logout"},
		"session": {m.options.SessionName},
		"_sid":    {s.ID},
	}

	if _, err := m.client.do(ctx, s.Candidate, AuthPath, params); err != nil {
		glog.V(3).Infof("Logout failed: %v", err)
		return
	}
	glog.Infof("Logged out of %s", s.Candidate)
}

// lastError unwraps the error list returned by retry.Do
func lastError(err error) error {
	list, ok := err.(retry.Error)
	if !ok {
		return err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] != nil {
			return list[i]
		}
	}
	return err
}

/************************************************************
 * API entry
 ************************************************************/

// APIEntry provides functions for an endpoint
type APIEntry interface {
	Get(ctx context.Context, method string, params url.Values) (map[string]*json.RawMessage, error)
}

type apiEntry struct {
	client  *Client
	session *Session
	path    string
	api     string
	version string
}

// NewAPIEntry creates an APIEntry object bound to a session
func NewAPIEntry(c *Client, s *Session, path string, api string, version string) APIEntry {
	return &apiEntry{
		client:  c,
		session: s,
		path:    path,
		api:     api,
		version: version,
	}
}

// Get sends 'GET' request to the endpoint for the method with the parameters
// It returns value of 'data' field when the request succeeds
func (e *apiEntry) Get(ctx context.Context, method string, params url.Values) (map[string]*json.RawMessage, error) {
	if e.session == nil {
		return nil, ErrNoSession
	}

	params.Set("api", e.api)
	params.Set("version", e.version)
	params.Set("method", method)
	params.Set("_sid", e.session.ID)

	return e.client.Query(ctx, e.session.Candidate, e.path, params)
}
