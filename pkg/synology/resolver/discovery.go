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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/synology/core"
)

const (
	// GlobalCoordinator answers server info queries for every region
	GlobalCoordinator = "https://global.quickconnect.to/Serv.php"

	regionCoordinatorFmt = "https://%s.quickconnect.to/Serv.php"
)

/*
REQUEST

[{
	"version": 1,
	"command": "get_server_info",
	"stop_when_error": false,
	"stop_when_success": false,
	"id": "dsm_portal_https",
	"serverID": "myds",
	"is_gofile": false
}]

RESPONSE (trimmed)

[{
	"command": "get_server_info",
	"errno": 0,
	"server": {
		"ddns": "myds.synology.me",
		"external": { "ip": "203.0.113.7", "ipv6": "::" },
		"interface": [ { "ip": "192.168.1.20", "name": "eth0" } ],
		"serverID": "123456789"
	},
	"service": { "port": 5001, "ext_port": 0 }
}]
*/

// serverInfoRequest is one command of a Serv.php request
type serverInfoRequest struct {
	Version         int    `json:"version"`
	Command         string `json:"command"`
	StopWhenError   bool   `json:"stop_when_error"`
	StopWhenSuccess bool   `json:"stop_when_success"`
	ID              string `json:"id"`
	ServerID        string `json:"serverID"`
	IsGofile        bool   `json:"is_gofile"`
}

type serverInfoResponse struct {
	Command string      `json:"command"`
	Errno   int         `json:"errno"`
	Server  *ServerInfo `json:"server"`
	Service struct {
		Port    int `json:"port"`
		ExtPort int `json:"ext_port"`
	} `json:"service"`
}

// ServerInfo is what the relay coordinator knows about a NAS
type ServerInfo struct {
	DDNS     string `json:"ddns"`
	FQDN     string `json:"fqdn"`
	External struct {
		IP string `json:"ip"`
	} `json:"external"`
	Interface []struct {
		IP   string `json:"ip"`
		Name string `json:"name"`
	} `json:"interface"`
	ServerID string `json:"serverID"`

	// Port and ExtPort are copied from the service block of the response
	Port    int `json:"-"`
	ExtPort int `json:"-"`
}

// Discoverer queries the relay coordinators for server connection info
type Discoverer struct {
	http      *http.Client
	endpoints []string
}

// NewDiscoverer creates a Discoverer asking the region coordinator first, if
// any, then the global one. The relay uses a public certificate so the
// default TLS verification is kept.
func NewDiscoverer(region string, timeout time.Duration) *Discoverer {
	endpoints := []string{}
	if region = strings.TrimSpace(region); region != "" {
		endpoints = append(endpoints, fmt.Sprintf(regionCoordinatorFmt, region))
	}
	endpoints = append(endpoints, GlobalCoordinator)

	return NewDiscovererWithHTTP(&http.Client{Timeout: timeout}, endpoints...)
}

// NewDiscovererWithHTTP creates a Discoverer for explicit coordinator URLs
func NewDiscovererWithHTTP(hc *http.Client, endpoints ...string) *Discoverer {
	return &Discoverer{
		http:      hc,
		endpoints: endpoints,
	}
}

// Endpoints returns the coordinator URLs in query order
func (d *Discoverer) Endpoints() []string {
	return d.endpoints
}

// ServerInfo asks each coordinator in turn and returns the first usable answer
func (d *Discoverer) ServerInfo(ctx context.Context, serverID string, secure bool) (*ServerInfo, error) {
	portalID := "dsm_portal"
	if secure {
		portalID = "dsm_portal_https"
	}

	payload, err := json.Marshal([]serverInfoRequest{{
		Version:  1,
		Command:  "get_server_info",
		ID:       portalID,
		ServerID: serverID,
	}})
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, endpoint := range d.endpoints {
		info, err := d.query(ctx, endpoint, payload)
		if err == nil {
			return info, nil
		}
		glog.Warningf("Relay discovery via %s failed: %v", endpoint, err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return nil, errors.New("no relay coordinator configured")
	}
	return nil, errors.Join(errs...)
}

func (d *Discoverer) query(ctx context.Context, endpoint string, payload []byte) (*ServerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if !core.LooksLikeJSON(body) {
		return nil, core.ErrNotJSON
	}

	var answers []serverInfoResponse
	if err := json.Unmarshal(body, &answers); err != nil {
		return nil, fmt.Errorf("malformed server info: %w", err)
	}

	for _, answer := range answers {
		if answer.Server == nil {
			continue
		}
		info := answer.Server
		info.Port = answer.Service.Port
		info.ExtPort = answer.Service.ExtPort
		return info, nil
	}

	return nil, errors.New("server info has no server field")
}
