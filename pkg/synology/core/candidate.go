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
	"fmt"
	"net/url"
	"strings"
)

const (
	// WebAPIPath is the DSM webapi prefix
	WebAPIPath = "/webapi"
	// PhotoWebAPIPath is the prefix Synology Photos is served under on portal/relay access
	PhotoWebAPIPath = "/photo/webapi"

	// AuthPath is the login cgi
	AuthPath = "auth.cgi"
	// EntryPath is the cgi serving every other api
	EntryPath = "entry.cgi"
)

// APIPaths lists the api prefixes in the order they are probed
var APIPaths = []string{WebAPIPath, PhotoWebAPIPath}

// Candidate is one base URL + api prefix combination to reach the NAS
type Candidate struct {
	BaseURL string
	APIPath string
	Label   string

	// RelayHost is the relay hostname the candidate was derived from. When set
	// it is sent as Referer, without it the relay answers with an HTML page.
	RelayHost string
}

// URL returns the full URL of a cgi under the candidate
func (c Candidate) URL(cgi string) string {
	return fmt.Sprintf("%s%s/%s", strings.TrimRight(c.BaseURL, "/"), c.APIPath, cgi)
}

// Host returns the hostname of the candidate, without port
func (c Candidate) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Referer returns the Referer header value for relay-origin candidates
func (c Candidate) Referer() string {
	if c.RelayHost == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/", c.RelayHost)
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %s%s", c.Label, c.BaseURL, c.APIPath)
}
