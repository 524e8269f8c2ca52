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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/glog"
)

// maxResponseSize bounds how much of an API response is read
const maxResponseSize = 32 << 20

// redactedParams are never written to the log
var redactedParams = []string{"passwd", "_sid", "otp_code", "device_id"}

/*

RESPONSE

{
	"success": true,
	"data": { ... }
}

{
	"success": false,
	"error": { "code": 119 }
}

*/

// responseData is the envelope of every webapi response
type responseData struct {
	Data  map[string]*json.RawMessage `json:"data"`
	Error struct {
		Code int `json:"code"`
	} `json:"error"`

	Success bool `json:"success"`
}

// Client sends webapi requests to NAS candidates
type Client struct {
	http  *http.Client
	codes *CodeTable
}

// NewNASTransport returns a transport that accepts self-signed NAS certificates
func NewNASTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // NAS certificates are self-signed
	}
	return transport
}

// NewClient creates a Client for NAS endpoints with a bounded request timeout
func NewClient(timeout time.Duration, codes *CodeTable) *Client {
	return NewClientWithHTTP(&http.Client{
		Transport: NewNASTransport(),
		Timeout:   timeout,
	}, codes)
}

// NewClientWithHTTP creates a Client on top of an existing http.Client
func NewClientWithHTTP(hc *http.Client, codes *CodeTable) *Client {
	if codes == nil {
		codes = DefaultCodeTable()
	}
	return &Client{
		http:  hc,
		codes: codes,
	}
}

// HTTP returns the underlying http client
func (c *Client) HTTP() *http.Client {
	return c.http
}

// Codes returns the error code lookup
func (c *Client) Codes() *CodeTable {
	return c.codes
}

// NewRequest builds a GET request for a cgi of the candidate
func (c *Client) NewRequest(ctx context.Context, cand Candidate, cgi string, params url.Values) (*http.Request, error) {
	urlObj, err := url.Parse(cand.URL(cgi))
	if err != nil {
		return nil, err
	}
	urlObj.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlObj.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	if referer := cand.Referer(); referer != "" {
		req.Header.Set("Referer", referer)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, cand Candidate, cgi string, params url.Values) (*responseData, error) {
	req, err := c.NewRequest(ctx, cand, cgi, params)
	if err != nil {
		return nil, &TransportError{URL: cand.URL(cgi), Err: err}
	}

	safeURL := RedactURL(req.URL)
	glog.V(5).Infof("Querying %s", safeURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: safeURL, Err: err}
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			glog.Errorf("Failed closing the body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: safeURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{URL: safeURL, Err: err}
	}

	if !LooksLikeJSON(body) {
		glog.V(3).Infof("Non JSON response from %s: %.80q", safeURL, body)
		return nil, &TransportError{URL: safeURL, Err: ErrNotJSON}
	}

	var data responseData
	if err := json.Unmarshal(body, &data); err != nil {
		glog.V(3).Infof("Failed to parse response: %s", body)
		return nil, &TransportError{URL: safeURL, Err: fmt.Errorf("%w: %v", ErrNotJSON, err)}
	}
	glog.V(8).Infof("Response from %s: success=%v code=%d", safeURL, data.Success, data.Error.Code)

	return &data, nil
}

// Query sends a request and returns the value of the 'data' field when the
// request succeeds. An unsuccessful response is returned as *APIError.
func (c *Client) Query(ctx context.Context, cand Candidate, cgi string, params url.Values) (map[string]*json.RawMessage, error) {
	data, err := c.do(ctx, cand, cgi, params)
	if err != nil {
		return nil, err
	}

	if !data.Success {
		code := data.Error.Code
		return nil, &APIError{
			API:     params.Get("api"),
			Method:  params.Get("method"),
			Code:    code,
			expired: c.codes.IsSessionError(code),
		}
	}

	return data.Data, nil
}

// Download issues a GET for a binary resource of the candidate, e.g. a
// thumbnail. The caller closes the response body.
func (c *Client) Download(ctx context.Context, cand Candidate, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if referer := cand.Referer(); referer != "" {
		req.Header.Set("Referer", referer)
	}

	glog.V(5).Infof("Downloading %s", RedactURL(target))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: RedactURL(target), Err: err}
	}
	return resp, nil
}

// LooksLikeJSON reports whether the body starts with a JSON object or array
func LooksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// RedactURL returns the URL with credentials and session ids masked
func RedactURL(u *url.URL) string {
	clone := *u
	params := clone.Query()
	changed := false
	for _, key := range redactedParams {
		if params.Has(key) {
			params.Set(key, "***")
			changed = true
		}
	}
	if changed {
		clone.RawQuery = params.Encode()
	}
	return clone.String()
}
