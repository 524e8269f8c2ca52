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
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RelayDomains are the registrable domains of the QuickConnect relay
var RelayDomains = []string{"quickconnect.to", "quickconnect.cn"}

// ServerTarget is the NAS address as configured by the user
type ServerTarget struct {
	Host    string
	Port    int
	IsRelay bool

	// ServerID is the QuickConnect id of a relay address
	ServerID string
}

// RelayHost returns the relay hostname serving the target, e.g. myds.quickconnect.to
func (t ServerTarget) RelayHost() string {
	if !t.IsRelay {
		return ""
	}
	return t.Host
}

// ParseTarget classifies a raw server address. The address may carry a
// scheme and an embedded port; an embedded port wins over port. Relay
// addresses are either <id>.quickconnect.to or quickconnect.to/<id>.
func ParseTarget(address string, port int) (ServerTarget, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return ServerTarget{}, errors.New("server address is empty")
	}

	raw := address
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ServerTarget{}, fmt.Errorf("invalid server address %q: %w", address, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ServerTarget{}, fmt.Errorf("invalid server address %q: no host", address)
	}

	if p := u.Port(); p != "" {
		embedded, err := strconv.Atoi(p)
		if err != nil || embedded <= 0 || embedded > 65535 {
			return ServerTarget{}, fmt.Errorf("invalid port in server address %q", address)
		}
		port = embedded
	}

	target := ServerTarget{Host: host, Port: port}

	domain := relayDomain(host)
	if domain == "" {
		return target, nil
	}

	target.IsRelay = true
	if host == domain {
		id := strings.Trim(u.Path, "/")
		if i := strings.Index(id, "/"); i >= 0 {
			id = id[:i]
		}
		if id == "" {
			return ServerTarget{}, fmt.Errorf("relay address %q has no server id", address)
		}
		target.ServerID = strings.ToLower(id)
		target.Host = target.ServerID + "." + domain
		return target, nil
	}

	// the server id is the first label, e.g. myds of myds.de3.quickconnect.to
	target.ServerID = strings.TrimSuffix(host, "."+domain)
	if i := strings.Index(target.ServerID, "."); i >= 0 {
		target.ServerID = target.ServerID[:i]
	}
	return target, nil
}

func relayDomain(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err == nil {
		for _, domain := range RelayDomains {
			if registrable == domain {
				return domain
			}
		}
	}

	// direct.quickconnect.to is a private public suffix of its own
	for _, domain := range RelayDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return domain
		}
	}
	return ""
}
