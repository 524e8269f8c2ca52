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

package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparklab/synology-photos/pkg/synology/core"
)

type staticSessions struct {
	session     *core.Session
	invalidated []*core.Session
}

func (s *staticSessions) Current() *core.Session {
	return s.session
}

func (s *staticSessions) Invalidate(session *core.Session) {
	s.invalidated = append(s.invalidated, session)
	if s.session == session {
		s.session = nil
	}
}

type upstream struct {
	*httptest.Server
	requests int32
	last     atomic.Pointer[http.Request]
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()

	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&u.requests, 1)
		u.last.Store(req)
		handler(resp, req)
	}))
	t.Cleanup(u.Close)
	return u
}

func newTestHandler(u *upstream, relayHost string) *Handler {
	sessions := &staticSessions{session: &core.Session{
		ID:        "live-sid",
		Candidate: core.Candidate{BaseURL: u.URL, APIPath: core.PhotoWebAPIPath, Label: "relay", RelayHost: relayHost},
	}}
	return NewHandler(sessions, core.NewClientWithHTTP(u.Client(), nil))
}

func proxyRequest(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/photo-proxy?"+url.Values{"url": {target}}.Encode(), nil)
}

const thumbnailTarget = "https://192.168.1.20:5001/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&version=1&method=get&mode=download&id=42&type=unit&size=sm&cache_key=42_1&_sid=stale-sid"

func TestProxyStreamsThumbnail(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Set("Content-Type", "image/jpeg")
		resp.Write([]byte("jpeg-bytes"))
	})
	h := newTestHandler(u, "myds.quickconnect.to")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := u.last.Load()
	require.NotNil(t, req)
	assert.Equal(t, "/photo/webapi/entry.cgi", req.URL.Path)
	assert.Equal(t, "live-sid", req.URL.Query().Get("_sid"))
	assert.Equal(t, "42", req.URL.Query().Get("id"))
	assert.Equal(t, "42_1", req.URL.Query().Get("cache_key"))
	assert.Equal(t, "https://myds.quickconnect.to/", req.Header.Get("Referer"))
}

func TestProxyRejectsBadTarget(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		resp.Write([]byte("unexpected"))
	})
	h := newTestHandler(u, "")

	targets := []string{
		"",
		"not a url",
		"/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&id=1&cache_key=1",
		"ftp://nas/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&id=1&cache_key=1",
		"https://nas/webapi/entry.cgi?api=SYNO.API.Auth&method=logout",
		"https://nas/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&cache_key=1",
		"https://nas/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&id=1",
		"https://nas/webapi/entry.cgi?api=SYNO.Foto.Thumbnail&id=abc&cache_key=1",
	}
	for _, target := range targets {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, proxyRequest(target))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photo-proxy", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, int32(0), atomic.LoadInt32(&u.requests))
}

func TestProxyPassesUpstreamStatus(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		resp.WriteHeader(http.StatusNotFound)
	})
	h := newTestHandler(u, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestProxyExpiredSession(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Set("Content-Type", "application/json")
		resp.Write([]byte(`{"success":false,"error":{"code":119}}`))
	})
	h := newTestHandler(u, "")
	sessions := h.sessions.(*staticSessions)
	live := sessions.session

	expired := 0
	h.OnSessionExpired = func() {
		expired++
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.NotContains(t, rec.Body.String(), "success")
	assert.Equal(t, []*core.Session{live}, sessions.invalidated)
	assert.Nil(t, sessions.Current())
	assert.Equal(t, 1, expired)

	// no live session left, the next request is not sent upstream
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.requests))
}

func TestProxyUpstreamErrorCode(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		// no JSON content type, the body alone gives the error away
		resp.Header().Set("Content-Type", "text/plain")
		resp.Write([]byte(`  {"success":false,"error":{"code":803}}`))
	})
	h := newTestHandler(u, "")
	sessions := h.sessions.(*staticSessions)

	h.OnSessionExpired = func() {
		t.Error("session must survive a non session error")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.Empty(t, sessions.invalidated)
	assert.NotNil(t, sessions.Current())
}

func TestProxyRebuildsThumbnailQuery(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Set("Content-Type", "image/jpeg")
		resp.Write([]byte("jpeg-bytes"))
	})
	h := newTestHandler(u, "")

	target := "https://nas/webapi/entry.cgi?api=SYNO.FotoTeam.Thumbnail&api=SYNO.API.Auth&method=delete&mode=list&id=7&cache_key=7_1&foo=bar&_sid=other"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(target))
	require.Equal(t, http.StatusOK, rec.Code)

	req := u.last.Load()
	require.NotNil(t, req)
	assert.Equal(t, url.Values{
		"api":       {"SYNO.FotoTeam.Thumbnail"},
		"version":   {"1"},
		"method":    {"get"},
		"mode":      {"download"},
		"id":        {"7"},
		"type":      {"unit"},
		"size":      {"sm"},
		"cache_key": {"7_1"},
		"_sid":      {"live-sid"},
	}, req.URL.Query())
}

func TestProxyUpstreamFailure(t *testing.T) {
	u := newUpstream(t, func(resp http.ResponseWriter, req *http.Request) {
		panic(http.ErrAbortHandler)
	})
	h := newTestHandler(u, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxyWithoutSession(t *testing.T) {
	h := NewHandler(&staticSessions{}, core.NewClientWithHTTP(http.DefaultClient, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, proxyRequest(thumbnailTarget))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProxyMethodNotAllowed(t *testing.T) {
	h := NewHandler(&staticSessions{}, core.NewClientWithHTTP(http.DefaultClient, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/photo-proxy", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
