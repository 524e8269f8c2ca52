/*
 * Copyright 2019 Ji-Young Park(jiyoung.park.dev@gmail.com)
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
	"context"
	"encoding/json"
	"errors"

	"github.com/golang/glog"
	"github.com/google/go-querystring/query"

	"github.com/jparklab/synology-photos/pkg/synology/core"
)

// Space is one of the two photo libraries of Synology Photos
type Space int

const (
	// PersonalSpace is the library of the logged in user
	PersonalSpace Space = iota
	// SharedSpace is the team library shared by all users
	SharedSpace
)

func (s Space) String() string {
	if s == SharedSpace {
		return "shared"
	}
	return "personal"
}

// BrowseAPIName returns the listing api of the space
func (s Space) BrowseAPIName() string {
	if s == SharedSpace {
		return "SYNO.FotoTeam.Browse.Item"
	}
	return "SYNO.Foto.Browse.Item"
}

// ThumbnailAPIName returns the thumbnail api of the space
func (s Space) ThumbnailAPIName() string {
	if s == SharedSpace {
		return "SYNO.FotoTeam.Thumbnail"
	}
	return "SYNO.Foto.Thumbnail"
}

var (
	// AdditionalItemFields contains list of additional fields to query
	AdditionalItemFields = []string{
		"thumbnail",
		"resolution",
	}
)

// ListParams are the browse parameters besides api/version/method/_sid
type ListParams struct {
	Type       string `url:"type"`
	Offset     int    `url:"offset"`
	Limit      int    `url:"limit"`
	Additional string `url:"additional"`
	AlbumID    int    `url:"album_id,omitempty"`
	FolderID   int    `url:"folder_id,omitempty"`
}

// NewListParams returns params for the first page of photos
func NewListParams(limit int) ListParams {
	additional, _ := json.Marshal(AdditionalItemFields)
	return ListParams{
		Type:       "photo",
		Offset:     0,
		Limit:      limit,
		Additional: string(additional),
	}
}

/*************************************************************
 * API for Items
 *************************************************************/

// BrowseAPI lists photos of one space
type BrowseAPI interface {
	List(ctx context.Context, params ListParams) ([]Item, error)
	Space() Space
}

type browseAPI struct {
	apiEntry core.APIEntry
	space    Space
}

// NewBrowseAPI creates a BrowseAPI object
func NewBrowseAPI(c *core.Client, s *core.Session, space Space) BrowseAPI {
	entry := core.NewAPIEntry(c, s, core.EntryPath, space.BrowseAPIName(), "1")

	return &browseAPI{
		apiEntry: entry,
		space:    space,
	}
}

func (b *browseAPI) Space() Space {
	return b.space
}

// List returns the items of a listing. Entries that cannot be decoded are
// dropped; a listing without a list field is a malformed response.
func (b *browseAPI) List(ctx context.Context, params ListParams) ([]Item, error) {
	v, err := query.Values(params)
	if err != nil {
		return nil, err
	}

	data, err := b.apiEntry.Get(ctx, "list", v)
	if err != nil {
		return nil, &core.FetchError{Kind: core.FetchSourceUnavailable, Source: b.space.String(), Err: err}
	}

	raw, ok := data["list"]
	if !ok || raw == nil {
		return nil, &core.FetchError{
			Kind:   core.FetchMalformedResponse,
			Source: b.space.String(),
			Err:    errors.New("response has no list"),
		}
	}

	var entries []json.RawMessage
	if jsonErr := json.Unmarshal(*raw, &entries); jsonErr != nil {
		glog.Errorf("Failed to parse item list: %s(%s)", *raw, jsonErr)
		return nil, &core.FetchError{Kind: core.FetchMalformedResponse, Source: b.space.String(), Err: jsonErr}
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		var item Item
		if jsonErr := json.Unmarshal(entry, &item); jsonErr != nil || item.ID == 0 {
			glog.V(3).Infof("Dropping malformed item %s: %v", entry, jsonErr)
			continue
		}
		items = append(items, item)
	}

	return items, nil
}
