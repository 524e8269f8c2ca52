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

package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparklab/synology-photos/pkg/synology/core"
)

const serverInfoAnswer = `[{
	"command": "get_server_info",
	"errno": 0,
	"server": {
		"ddns": "myds.synology.me",
		"external": { "ip": "203.0.113.7", "ipv6": "::" },
		"interface": [
			{ "ip": "NULL", "name": "eth1" },
			{ "ip": "192.168.1.20", "name": "eth0" },
			{ "ip": "192.168.1.20", "name": "bond0" }
		],
		"serverID": "123456789"
	},
	"service": { "port": 5001, "ext_port": 15001 }
}]`

func newCoordinator(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func labels(candidates []core.Candidate) []string {
	result := make([]string, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.Label+" "+c.BaseURL+c.APIPath)
	}
	return result
}

func TestCandidatesDirect(t *testing.T) {
	target, err := ParseTarget("nas.local", 0)
	require.NoError(t, err)

	r := New(target, true, nil, nil)
	candidates := r.Candidates(context.Background())

	require.Len(t, candidates, 2)
	assert.Equal(t, []string{
		"direct https://nas.local:5001/webapi",
		"direct https://nas.local:5001/photo/webapi",
	}, labels(candidates))
	assert.Empty(t, candidates[0].RelayHost)
}

func TestCandidatesDirectInsecure(t *testing.T) {
	target, err := ParseTarget("192.168.1.20:5000", 5001)
	require.NoError(t, err)

	candidates := New(target, false, nil, nil).Candidates(context.Background())
	require.Len(t, candidates, 2)
	assert.Equal(t, "http://192.168.1.20:5000", candidates[0].BaseURL)
}

func TestCandidatesRelay(t *testing.T) {
	coordinator := newCoordinator(t, func(resp http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)

		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)

		var payload []map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		if !assert.Len(t, payload, 1) {
			return
		}
		assert.Equal(t, "get_server_info", payload[0]["command"])
		assert.Equal(t, "myds", payload[0]["serverID"])
		assert.Equal(t, "dsm_portal_https", payload[0]["id"])
		assert.Equal(t, float64(1), payload[0]["version"])
		assert.Equal(t, false, payload[0]["is_gofile"])

		resp.Write([]byte(serverInfoAnswer))
	})

	target, err := ParseTarget("myds.quickconnect.to", 0)
	require.NoError(t, err)

	discoverer := NewDiscovererWithHTTP(coordinator.Client(), coordinator.URL)
	candidates := New(target, true, discoverer, nil).Candidates(context.Background())

	assert.Equal(t, []string{
		"lan https://192.168.1.20:5001/webapi",
		"lan https://192.168.1.20:5001/photo/webapi",
		"ddns https://myds.synology.me:5001/webapi",
		"ddns https://myds.synology.me:5001/photo/webapi",
		"external https://203.0.113.7:15001/webapi",
		"external https://203.0.113.7:15001/photo/webapi",
		"relay https://myds.quickconnect.to/webapi",
		"relay https://myds.quickconnect.to/photo/webapi",
	}, labels(candidates))

	for _, c := range candidates {
		assert.Equal(t, "myds.quickconnect.to", c.RelayHost)
		assert.Equal(t, "https://myds.quickconnect.to/", c.Referer())
	}
}

func TestCandidatesRelayDiscoveryFails(t *testing.T) {
	answers := map[string]http.HandlerFunc{
		"html": func(resp http.ResponseWriter, req *http.Request) {
			resp.Write([]byte("<html>QuickConnect</html>"))
		},
		"no server": func(resp http.ResponseWriter, req *http.Request) {
			resp.Write([]byte(`[{"command": "get_server_info", "errno": 4}]`))
		},
		"status": func(resp http.ResponseWriter, req *http.Request) {
			resp.WriteHeader(http.StatusInternalServerError)
		},
		"malformed": func(resp http.ResponseWriter, req *http.Request) {
			resp.Write([]byte(`[{"server": "nope"`))
		},
	}

	target, err := ParseTarget("quickconnect.to/myds", 0)
	require.NoError(t, err)

	for name, handler := range answers {
		t.Run(name, func(t *testing.T) {
			coordinator := newCoordinator(t, handler)

			discoverer := NewDiscovererWithHTTP(coordinator.Client(), coordinator.URL)
			candidates := New(target, true, discoverer, nil).Candidates(context.Background())

			assert.Equal(t, []string{
				"relay https://myds.quickconnect.to/webapi",
				"relay https://myds.quickconnect.to/photo/webapi",
			}, labels(candidates))
		})
	}
}

func TestCandidatesRelayUnreachable(t *testing.T) {
	coordinator := newCoordinator(t, func(resp http.ResponseWriter, req *http.Request) {})
	url := coordinator.URL
	coordinator.Close()

	target, err := ParseTarget("myds.quickconnect.to", 0)
	require.NoError(t, err)

	discoverer := NewDiscovererWithHTTP(&http.Client{Timeout: time.Second}, url)
	candidates := New(target, true, discoverer, nil).Candidates(context.Background())
	assert.Len(t, candidates, 2)
}

func TestDiscovererFallsBackToGlobal(t *testing.T) {
	var regionCalls, globalCalls int32
	region := newCoordinator(t, func(resp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&regionCalls, 1)
		resp.WriteHeader(http.StatusBadGateway)
	})
	global := newCoordinator(t, func(resp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&globalCalls, 1)
		resp.Write([]byte(serverInfoAnswer))
	})

	discoverer := NewDiscovererWithHTTP(http.DefaultClient, region.URL, global.URL)
	info, err := discoverer.ServerInfo(context.Background(), "myds", false)
	require.NoError(t, err)

	assert.Equal(t, "myds.synology.me", info.DDNS)
	assert.Equal(t, "203.0.113.7", info.External.IP)
	assert.Equal(t, 5001, info.Port)
	assert.Equal(t, 15001, info.ExtPort)
	assert.Equal(t, int32(1), atomic.LoadInt32(&regionCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&globalCalls))
}

func TestNewDiscovererEndpoints(t *testing.T) {
	assert.Equal(t, []string{
		"https://de.quickconnect.to/Serv.php",
		GlobalCoordinator,
	}, NewDiscoverer("de", time.Second).Endpoints())

	assert.Equal(t, []string{GlobalCoordinator}, NewDiscoverer("", time.Second).Endpoints())

	_, err := NewDiscovererWithHTTP(http.DefaultClient).ServerInfo(context.Background(), "myds", true)
	assert.Error(t, err)
}

func newNAS(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Resolver) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	target, err := ParseTarget(ts.URL, 0)
	require.NoError(t, err)

	client := core.NewClientWithHTTP(ts.Client(), nil)
	return ts, New(target, false, nil, client)
}

func TestAdoptFallsBackToPhotoPath(t *testing.T) {
	var probes int32
	_, r := newNAS(t, func(resp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&probes, 1)
		params := req.URL.Query()
		assert.Equal(t, "SYNO.API.Info", params.Get("api"))
		assert.Equal(t, "query", params.Get("method"))

		if req.URL.Path != "/photo/webapi/entry.cgi" {
			http.NotFound(resp, req)
			return
		}
		resp.Write([]byte(`{
			"data": {
				"SYNO.API.Auth": { "maxVersion": 7, "minVersion": 1, "path": "auth.cgi" },
				"SYNO.Foto.Browse.Item": { "maxVersion": 1, "minVersion": 1, "path": "entry.cgi" }
			},
			"success": true
		}`))
	})

	cand, err := r.Adopt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.PhotoWebAPIPath, cand.APIPath)
	assert.Equal(t, int32(2), atomic.LoadInt32(&probes))

	// the adopted candidate is remembered
	again, err := r.Adopt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cand, again)
	assert.Equal(t, int32(2), atomic.LoadInt32(&probes))

	adopted, ok := r.Adopted()
	assert.True(t, ok)
	assert.Equal(t, cand, adopted)

	r.Forget()
	_, ok = r.Adopted()
	assert.False(t, ok)

	_, err = r.Adopt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&probes))
}

func TestAdoptFails(t *testing.T) {
	_, r := newNAS(t, func(resp http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/webapi/entry.cgi" {
			resp.Write([]byte(`{ "data": {}, "success": true }`))
			return
		}
		resp.Write([]byte(`{ "error": { "code": 102 }, "success": false }`))
	})

	_, err := r.Adopt(context.Background())

	var resolutionErr *core.ResolutionError
	require.True(t, errors.As(err, &resolutionErr))
	assert.Len(t, resolutionErr.Errors, 2)
	assert.Equal(t, "127.0.0.1", resolutionErr.Address)
}
