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

package photoframe

import (
	"context"
	"math/rand"
	"net/url"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/synology/api/photos"
	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/options"
)

// BrowseAPIFactory creates the listing api of a space for a session
type BrowseAPIFactory func(c *core.Client, s *core.Session, space photos.Space) photos.BrowseAPI

// Fetcher lists one page of photos and normalizes it into a Catalog
type Fetcher struct {
	options      options.PhotoOptions
	newBrowseAPI BrowseAPIFactory
	shuffle      func(n int, swap func(i, j int))
}

// NewFetcher creates a Fetcher
func NewFetcher(photoOptions options.PhotoOptions) *Fetcher {
	return &Fetcher{
		options:      photoOptions,
		newBrowseAPI: photos.NewBrowseAPI,
		shuffle:      rand.Shuffle,
	}
}

// Fetch lists up to the configured limit of photos of source. Items whose
// thumbnail is not ready at the configured size are dropped. An empty
// catalog is a valid result.
func (f *Fetcher) Fetch(ctx context.Context, c *core.Client, s *core.Session, source Source) (*Catalog, error) {
	if s == nil {
		return nil, core.ErrNoSession
	}

	api := f.newBrowseAPI(c, s, source.Space)
	items, err := api.List(ctx, source.ListParams(f.options.Limit))
	if err != nil {
		return nil, err
	}

	result := f.normalize(items, source.Space, s)
	glog.V(3).Infof("Listed %d items from %s, %d with a ready %s thumbnail",
		len(items), source, len(result), f.options.ThumbnailSize)

	return &Catalog{
		Photos:      result,
		Source:      source.String(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (f *Fetcher) normalize(items []photos.Item, space photos.Space, s *core.Session) []Photo {
	size := f.options.ThumbnailSize

	ready := make([]photos.Item, 0, len(items))
	for _, item := range items {
		if item.ThumbnailReady(size) {
			ready = append(ready, item)
		}
	}

	switch {
	case f.options.Shuffle:
		f.shuffle(len(ready), func(i, j int) {
			ready[i], ready[j] = ready[j], ready[i]
		})
	case f.options.SortByTime:
		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].Time > ready[j].Time
		})
	}

	result := make([]Photo, 0, len(ready))
	for _, item := range ready {
		photo := Photo{
			ID:       item.ID,
			Filename: item.Filename,
			URL:      f.photoURL(s, space, item),
			Time:     time.Unix(item.Time, 0).UTC(),
		}
		if res := item.Additional.Resolution; res != nil && res.Width > 0 && res.Height > 0 {
			width, height := res.Width, res.Height
			photo.Width = &width
			photo.Height = &height
		}
		result = append(result, photo)
	}
	return result
}

// photoURL returns the signed NAS URL, or in proxy mode the local proxy URL
// wrapping the unsigned one so the sid never reaches the display
func (f *Fetcher) photoURL(s *core.Session, space photos.Space, item photos.Item) string {
	if !f.options.ProxyMode {
		return photos.ThumbnailURL(s.Candidate, s.ID, space, item, f.options.ThumbnailSize)
	}

	unsigned := photos.ThumbnailURL(s.Candidate, "", space, item, f.options.ThumbnailSize)
	return f.options.ProxyPath + "?" + url.Values{"url": {unsigned}}.Encode()
}
