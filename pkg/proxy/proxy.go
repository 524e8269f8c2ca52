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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/synology/api/photos"
	"github.com/jparklab/synology-photos/pkg/synology/core"
)

// DefaultMaxAge is the public cache lifetime of a thumbnail. Thumbnails
// never change for a given cache key.
const DefaultMaxAge = 24 * time.Hour

// jsonPeekSize is how much of an upstream body is inspected for a JSON error
const jsonPeekSize = 512

// SessionSource returns the live session and drops it once the NAS
// rejects its sid
type SessionSource interface {
	Current() *core.Session
	Invalidate(s *core.Session)
}

// Handler relays thumbnail downloads so the display never talks to the NAS
// nor sees the sid. It serves GET ?url=<thumbnail url>; the target is
// re-signed with the live session before it is fetched.
type Handler struct {
	sessions SessionSource
	client   *core.Client
	maxAge   time.Duration

	// OnSessionExpired is called after the NAS rejected the live sid, e.g.
	// to start a fetch cycle that logs in again
	OnSessionExpired func()
}

// NewHandler creates a Handler
func NewHandler(sessions SessionSource, client *core.Client) *Handler {
	return &Handler{
		sessions: sessions,
		client:   client,
		maxAge:   DefaultMaxAge,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			glog.Errorf("Thumbnail proxy panicked: %v", rec)
			http.Error(w, "proxy failure", http.StatusBadGateway)
		}
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := parseTarget(r.URL.Query().Get("url"))
	if err != nil {
		glog.V(3).Infof("Rejected proxy request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := h.sessions.Current()
	if s == nil {
		http.Error(w, core.ErrNoSession.Error(), http.StatusServiceUnavailable)
		return
	}

	target, err := sign(s, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp, err := h.client.Download(r.Context(), s.Candidate, target)
	if err != nil {
		proxyErr := &core.ProxyError{Kind: core.ProxyUpstreamFailure, Err: err}
		glog.Warningf("%v", proxyErr)
		http.Error(w, "upstream failure", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		glog.Warningf("Thumbnail %s answered %d", params.Get("id"), resp.StatusCode)
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}

	// the NAS answers errors, an expired sid included, as 200 with a JSON body
	body := bufio.NewReaderSize(resp.Body, jsonPeekSize)
	head, _ := body.Peek(jsonPeekSize)
	if isJSON(resp.Header.Get("Content-Type")) || core.LooksLikeJSON(head) {
		h.upstreamError(w, s, params, body)
		return
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		glog.V(3).Infof("Thumbnail stream interrupted: %v", err)
	}
}

// upstreamError answers a JSON error of the NAS. A rejected sid drops the
// live session; nothing here is cacheable.
func (h *Handler) upstreamError(w http.ResponseWriter, s *core.Session, params url.Values, body io.Reader) {
	var answer struct {
		Success bool `json:"success"`
		Error   struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&answer); err != nil {
		glog.Warningf("Thumbnail %s answered unparsable JSON: %v", params.Get("id"), err)
		http.Error(w, "upstream failure", http.StatusBadGateway)
		return
	}

	code := answer.Error.Code
	if h.client.Codes().IsSessionError(code) {
		glog.Infof("Thumbnail %s rejected the session (code %d)", params.Get("id"), code)
		h.sessions.Invalidate(s)
		if h.OnSessionExpired != nil {
			h.OnSessionExpired()
		}
		http.Error(w, core.ErrSessionExpired.Error(), http.StatusServiceUnavailable)
		return
	}

	glog.Warningf("Thumbnail %s answered error code %d", params.Get("id"), code)
	http.Error(w, fmt.Sprintf("upstream error code %d", code), http.StatusBadGateway)
}

func isJSON(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// parseTarget validates the url parameter and returns the thumbnail query
// rebuilt from it, unsigned. Only thumbnail downloads are relayed.
func parseTarget(raw string) (url.Values, error) {
	if raw == "" {
		return nil, &core.ProxyError{Kind: core.ProxyMissingTarget, Err: errors.New("missing url parameter")}
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &core.ProxyError{Kind: core.ProxyMissingTarget, Err: fmt.Errorf("malformed url %q", raw)}
	}

	params, err := photos.ThumbnailQuery(u.Query(), "")
	if err != nil {
		return nil, &core.ProxyError{Kind: core.ProxyMissingTarget, Err: err}
	}
	return params, nil
}

// sign rebases the thumbnail onto the candidate of s and sets the live sid
func sign(s *core.Session, params url.Values) (*url.URL, error) {
	target, err := url.Parse(s.Candidate.URL(core.EntryPath))
	if err != nil {
		return nil, &core.ProxyError{Kind: core.ProxyUpstreamFailure, Err: err}
	}

	signed, err := photos.ThumbnailQuery(params, s.ID)
	if err != nil {
		return nil, &core.ProxyError{Kind: core.ProxyUpstreamFailure, Err: err}
	}
	target.RawQuery = signed.Encode()
	return target, nil
}
