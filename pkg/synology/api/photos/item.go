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
	"encoding/json"
	"strings"
)

/*************************************************************
* Item Object
* Example Item
   {
       "id": 40808,
       "filename": "IMG_0042.JPG",
       "filesize": 3811245,
       "time": 1633659236,
       "indexed_time": 1633700000123,
       "owner_user_id": 1,
       "folder_id": 12,
       "type": "photo",
       "additional": {
           "resolution": { "width": 4032, "height": 3024 },
           "thumbnail": {
               "m": "ready",
               "xl": "ready",
               "preview": "broken",
               "sm": "ready",
               "cache_key": "40808_1633659236",
               "unit_id": 40808
           }
       }
   }
*/

// Item is a listing entry of SYNO.Foto.Browse.Item
type Item struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	Time     int64  `json:"time"`
	Type     string `json:"type"`

	Additional struct {
		Resolution *Resolution `json:"resolution"`
		Thumbnail  *Thumbnail  `json:"thumbnail"`
	} `json:"additional"`
}

// Resolution is the original size of an item
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Thumbnail holds per-size readiness normalized to booleans. DSM releases
// report readiness either as "ready" or as true.
type Thumbnail struct {
	Ready    map[string]bool
	CacheKey string
	UnitID   int
}

// UnmarshalJSON normalizes the readiness map
func (t *Thumbnail) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Ready = make(map[string]bool, len(raw))
	for key, value := range raw {
		switch key {
		case "cache_key":
			if err := json.Unmarshal(value, &t.CacheKey); err != nil {
				return err
			}
		case "unit_id":
			if err := json.Unmarshal(value, &t.UnitID); err != nil {
				return err
			}
		default:
			t.Ready[key] = readyValue(value)
		}
	}
	return nil
}

func readyValue(value json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return strings.EqualFold(s, "ready")
	}
	return false
}

// ThumbnailReady reports whether the thumbnail of size can be downloaded
func (i *Item) ThumbnailReady(size string) bool {
	t := i.Additional.Thumbnail
	return t != nil && t.CacheKey != "" && t.Ready[size]
}

// CacheKey returns the thumbnail cache key, empty when unknown
func (i *Item) CacheKey() string {
	if i.Additional.Thumbnail == nil {
		return ""
	}
	return i.Additional.Thumbnail.CacheKey
}
