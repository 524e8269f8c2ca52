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

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/synology/core"
)

type fakeCatalog struct {
	catalog *photoframe.Catalog
	err     error
	at      time.Time
}

func (f *fakeCatalog) Catalog() *photoframe.Catalog {
	return f.catalog
}

func (f *fakeCatalog) LastFailure() (time.Time, error) {
	return f.at, f.err
}

type fakeTrigger struct {
	calls  int
	result bool
}

func (f *fakeTrigger) Trigger() bool {
	f.calls++
	return f.result
}

func newTestServer(catalog *fakeCatalog, trigger *fakeTrigger) *Server {
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(r.URL.Query().Get("url")))
	})
	return New(":0", catalog, trigger, proxy, "/photo-proxy", 30*time.Minute)
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestPhotos(t *testing.T) {
	width := 4032
	catalog := &photoframe.Catalog{
		Photos: []photoframe.Photo{
			{ID: 1, Filename: "a.jpg", URL: "/photo-proxy?url=x", Width: &width, Height: &width, Time: time.Unix(100, 0).UTC()},
		},
		Source:      "personal space",
		GeneratedAt: time.Now().UTC(),
	}
	s := newTestServer(&fakeCatalog{catalog: catalog}, &fakeTrigger{})

	rec := serve(s, http.MethodGet, "/api/v1/photos")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body photosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Photos, 1)
	assert.Equal(t, 1, body.Photos[0].ID)
	assert.Equal(t, "personal space", body.Source)
	assert.False(t, body.Stale)
	assert.Empty(t, body.Error)
	assert.NotNil(t, body.GeneratedAt)
}

func TestPhotosStaleAfterFailure(t *testing.T) {
	catalog := &photoframe.Catalog{
		Photos:      []photoframe.Photo{{ID: 1}},
		GeneratedAt: time.Now().Add(-2 * time.Hour),
	}
	failure := &fakeCatalog{
		catalog: catalog,
		err:     &core.AuthError{Kind: core.AuthNeedsOtp, Code: 403},
		at:      time.Now(),
	}
	s := newTestServer(failure, &fakeTrigger{})

	rec := serve(s, http.MethodGet, "/api/v1/photos")
	require.Equal(t, http.StatusOK, rec.Code)

	var body photosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Photos, 1)
	assert.True(t, body.Stale)
	assert.Contains(t, body.Error, "register")
	assert.NotNil(t, body.ErrorAt)
}

func TestPhotosBeforeFirstFetch(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, &fakeTrigger{})
	rec := serve(s, http.MethodGet, "/api/v1/photos")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s = newTestServer(&fakeCatalog{err: errors.New("boom"), at: time.Now()}, &fakeTrigger{})
	rec = serve(s, http.MethodGet, "/api/v1/photos")
	require.Equal(t, http.StatusOK, rec.Code)

	var body photosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Photos)
	assert.NotNil(t, body.Photos)
	assert.Equal(t, "boom", body.Error)
}

func TestRefresh(t *testing.T) {
	trigger := &fakeTrigger{result: true}
	s := newTestServer(&fakeCatalog{}, trigger)

	rec := serve(s, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"triggered": true}`, rec.Body.String())
	assert.Equal(t, 1, trigger.calls)

	rec = serve(s, http.MethodGet, "/api/v1/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1, trigger.calls)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, &fakeTrigger{})

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/readyz").Code)

	s = newTestServer(&fakeCatalog{catalog: &photoframe.Catalog{}}, &fakeTrigger{})
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/readyz").Code)
}

func TestProxyRoute(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, &fakeTrigger{})

	rec := serve(s, http.MethodGet, "/photo-proxy?url=thumb")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thumb", rec.Body.String())
}
