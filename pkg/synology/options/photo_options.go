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

package options

import "time"

// PhotoOptions selects and shapes the photos shown on the frame
type PhotoOptions struct {
	// Photo source. Precedence: album, folder, shared space, personal space
	AlbumID     int  `yaml:"albumId"`
	FolderID    int  `yaml:"folderId"`
	SharedSpace bool `yaml:"sharedSpace"`

	Limit         int    `yaml:"limit"`
	ThumbnailSize string `yaml:"thumbnailSize"`
	Shuffle       bool   `yaml:"shuffle"`
	SortByTime    bool   `yaml:"sortByTime"`

	RefreshInterval time.Duration `yaml:"refreshInterval"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// ProxyMode hands out local /photo-proxy URLs instead of signed NAS URLs
	ProxyMode bool `yaml:"proxyMode"`
	// ProxyPath is the route of the local thumbnail proxy
	ProxyPath string `yaml:"proxyPath"`

	// RelayRegion is tried before the global relay coordinator, e.g. "de"
	RelayRegion string `yaml:"relayRegion"`

	// AuthErrorCodes overrides the login error code lookup, e.g. {406: needs_otp}
	AuthErrorCodes map[int]string `yaml:"authErrorCodes"`
	// SessionErrorCodes overrides the entry.cgi codes meaning the session is gone
	SessionErrorCodes []int `yaml:"sessionErrorCodes"`
}

// NewPhotoOptions returns the defaults used when the config omits a field
func NewPhotoOptions() PhotoOptions {
	return PhotoOptions{
		Limit:           DefaultLimit,
		ThumbnailSize:   DefaultThumbnailSize,
		RefreshInterval: DefaultRefreshInterval,
		RequestTimeout:  DefaultRequestTimeout,
		ProxyPath:       "/photo-proxy",
	}
}
