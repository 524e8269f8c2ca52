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
	"fmt"
	"time"

	"github.com/jparklab/synology-photos/pkg/synology/api/photos"
	"github.com/jparklab/synology-photos/pkg/synology/options"
)

// Photo is a normalized photo handed to the presentation layer
type Photo struct {
	ID       int       `json:"id"`
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Width    *int      `json:"width,omitempty"`
	Height   *int      `json:"height,omitempty"`
	Time     time.Time `json:"time"`
}

// Catalog is an immutable snapshot of the photos of one fetch cycle. It is
// replaced as a whole, never modified after it was published.
type Catalog struct {
	Photos      []Photo   `json:"photos"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Len returns the number of photos
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Photos)
}

// SourceKind is the kind of photo source
type SourceKind int

const (
	SourcePersonal SourceKind = iota
	SourceShared
	SourceFolder
	SourceAlbum
)

// Source is the one place photos are listed from
type Source struct {
	Kind  SourceKind
	ID    int
	Space photos.Space
}

// SelectSource picks the source from the options. An album wins over a
// folder, a folder over the shared space, the personal space is the default.
// A folder is looked up in the shared space when SharedSpace is also set.
func SelectSource(opts options.PhotoOptions) Source {
	switch {
	case opts.AlbumID > 0:
		return Source{Kind: SourceAlbum, ID: opts.AlbumID, Space: photos.PersonalSpace}
	case opts.FolderID > 0:
		space := photos.PersonalSpace
		if opts.SharedSpace {
			space = photos.SharedSpace
		}
		return Source{Kind: SourceFolder, ID: opts.FolderID, Space: space}
	case opts.SharedSpace:
		return Source{Kind: SourceShared, Space: photos.SharedSpace}
	default:
		return Source{Kind: SourcePersonal, Space: photos.PersonalSpace}
	}
}

// ListParams returns the browse parameters of the source
func (s Source) ListParams(limit int) photos.ListParams {
	params := photos.NewListParams(limit)
	switch s.Kind {
	case SourceAlbum:
		params.AlbumID = s.ID
	case SourceFolder:
		params.FolderID = s.ID
	}
	return params
}

func (s Source) String() string {
	switch s.Kind {
	case SourceAlbum:
		return fmt.Sprintf("album %d", s.ID)
	case SourceFolder:
		return fmt.Sprintf("%s folder %d", s.Space, s.ID)
	case SourceShared:
		return "shared space"
	default:
		return "personal space"
	}
}
