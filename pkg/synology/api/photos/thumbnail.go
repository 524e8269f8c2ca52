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

package photos

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/go-querystring/query"

	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/options"
)

// thumbnailParams are the entry.cgi parameters of a thumbnail download
type thumbnailParams struct {
	API      string `url:"api"`
	Version  string `url:"version"`
	Method   string `url:"method"`
	Mode     string `url:"mode"`
	ID       int    `url:"id"`
	Type     string `url:"type"`
	Size     string `url:"size"`
	CacheKey string `url:"cache_key"`
	Sid      string `url:"_sid,omitempty"`
}

// ThumbnailURL returns the thumbnail download URL of item. With an empty sid
// the URL is unsigned and has to be signed before it can be fetched.
func ThumbnailURL(cand core.Candidate, sid string, space Space, item Item, size string) string {
	v, _ := query.Values(thumbnailParams{
		API:      space.ThumbnailAPIName(),
		Version:  "1",
		Method:   "get",
		Mode:     "download",
		ID:       item.ID,
		Type:     "unit",
		Size:     size,
		CacheKey: item.CacheKey(),
		Sid:      sid,
	})

	u, err := url.Parse(cand.URL(core.EntryPath))
	if err != nil {
		return ""
	}
	u.RawQuery = v.Encode()
	return u.String()
}

// ThumbnailSpace returns the space of a thumbnail api name
func ThumbnailSpace(api string) (Space, bool) {
	switch api {
	case PersonalSpace.ThumbnailAPIName():
		return PersonalSpace, true
	case SharedSpace.ThumbnailAPIName():
		return SharedSpace, true
	}
	return PersonalSpace, false
}

// ThumbnailQuery rebuilds the query of a thumbnail download from the fields
// of params that name the thumbnail. Anything else in params is dropped and
// method and mode are fixed, so the result can only ever download a
// thumbnail. The query is signed when sid is set.
func ThumbnailQuery(params url.Values, sid string) (url.Values, error) {
	api := params.Get("api")
	if _, ok := ThumbnailSpace(api); !ok {
		return nil, fmt.Errorf("%q is not a thumbnail api", api)
	}

	id, err := strconv.Atoi(params.Get("id"))
	if err != nil || id < 0 {
		return nil, fmt.Errorf("invalid thumbnail id %q", params.Get("id"))
	}

	cacheKey := params.Get("cache_key")
	if cacheKey == "" {
		return nil, errors.New("thumbnail url lacks cache_key")
	}

	p := thumbnailParams{
		API:      api,
		Version:  params.Get("version"),
		Method:   "get",
		Mode:     "download",
		ID:       id,
		Type:     params.Get("type"),
		Size:     params.Get("size"),
		CacheKey: cacheKey,
		Sid:      sid,
	}
	if p.Version == "" {
		p.Version = "1"
	}
	if p.Type == "" {
		p.Type = "unit"
	}
	if p.Size == "" {
		p.Size = options.DefaultThumbnailSize
	}
	return query.Values(p)
}
