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
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/synology/core"
)

const (
	labelDirect   = "direct"
	labelLAN      = "lan"
	labelDDNS     = "ddns"
	labelExternal = "external"
	labelRelay    = "relay"

	defaultPort = 5001
)

// Resolver turns a ServerTarget into connection candidates and remembers the
// first one that answers with a valid API info payload
type Resolver struct {
	target     ServerTarget
	secure     bool
	discoverer *Discoverer
	client     *core.Client

	mu      sync.Mutex
	adopted *core.Candidate
}

// New creates a Resolver. discoverer is only used for relay targets.
func New(target ServerTarget, secure bool, discoverer *Discoverer, client *core.Client) *Resolver {
	return &Resolver{
		target:     target,
		secure:     secure,
		discoverer: discoverer,
		client:     client,
	}
}

// Target returns the configured target
func (r *Resolver) Target() ServerTarget {
	return r.target
}

func (r *Resolver) scheme() string {
	if r.secure {
		return "https"
	}
	return "http"
}

// Candidates returns the connection candidates in probing order. Every base
// URL is expanded to one candidate per api path, /webapi first. For a relay
// target the list always ends with the relay address itself, so it is never
// empty even when discovery fails.
func (r *Resolver) Candidates(ctx context.Context) []core.Candidate {
	if !r.target.IsRelay {
		port := r.target.Port
		if port <= 0 {
			port = defaultPort
		}
		return expand(nil, r.baseURL(r.target.Host, port), labelDirect, "")
	}

	relayHost := r.target.RelayHost()

	var candidates []core.Candidate
	if r.discoverer != nil {
		info, err := r.discoverer.ServerInfo(ctx, r.target.ServerID, r.secure)
		if err != nil {
			glog.Warningf("Relay discovery for %s failed, using the relay only: %v", r.target.ServerID, err)
		} else {
			candidates = r.fromServerInfo(info, relayHost)
		}
	}

	return expand(candidates, "https://"+relayHost, labelRelay, relayHost)
}

func (r *Resolver) fromServerInfo(info *ServerInfo, relayHost string) []core.Candidate {
	port := info.Port
	if port <= 0 {
		port = defaultPort
	}
	extPort := info.ExtPort
	if extPort <= 0 {
		extPort = port
	}

	var candidates []core.Candidate
	for _, iface := range info.Interface {
		if usable(iface.IP) {
			candidates = expand(candidates, r.baseURL(iface.IP, port), labelLAN, relayHost)
		}
	}
	if usable(info.DDNS) {
		candidates = expand(candidates, r.baseURL(info.DDNS, port), labelDDNS, relayHost)
	}
	if usable(info.External.IP) {
		candidates = expand(candidates, r.baseURL(info.External.IP, extPort), labelExternal, relayHost)
	}
	return candidates
}

func (r *Resolver) baseURL(host string, port int) string {
	u := url.URL{
		Scheme: r.scheme(),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	return u.String()
}

// Validate asks cand for its API info listing
func (r *Resolver) Validate(ctx context.Context, cand core.Candidate) error {
	data, err := r.client.Query(ctx, cand, core.EntryPath, url.Values{
		"api":     {"SYNO.API.Info"},
		"version": {"1"},
		"method":  {"query"},
		"query":   {"SYNO.API.Auth,SYNO.Foto.Browse.Item"},
	})
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s: empty API info", cand)
	}
	return nil
}

// Adopt returns the remembered candidate, probing the candidates in order
// when none is remembered yet
func (r *Resolver) Adopt(ctx context.Context) (core.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adopted != nil {
		return *r.adopted, nil
	}

	candidates := r.Candidates(ctx)
	var errs []error
	for _, cand := range candidates {
		glog.V(3).Infof("Probing %s", cand)
		if err := r.Validate(ctx, cand); err != nil {
			glog.V(3).Infof("Candidate %s rejected: %v", cand, err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		adopted := cand
		r.adopted = &adopted
		glog.Infof("Using %s", cand)
		return cand, nil
	}

	return core.Candidate{}, &core.ResolutionError{Address: r.target.Host, Errors: errs}
}

// Adopted returns the remembered candidate, if any
func (r *Resolver) Adopted() (core.Candidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adopted == nil {
		return core.Candidate{}, false
	}
	return *r.adopted, true
}

// Forget drops the remembered candidate so the next Adopt probes again
func (r *Resolver) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adopted != nil {
		glog.Infof("Forgetting %s", *r.adopted)
	}
	r.adopted = nil
}

func expand(candidates []core.Candidate, base string, label string, relayHost string) []core.Candidate {
	for _, existing := range candidates {
		if existing.BaseURL == base {
			return candidates
		}
	}
	for _, path := range core.APIPaths {
		candidates = append(candidates, core.Candidate{
			BaseURL:   base,
			APIPath:   path,
			Label:     label,
			RelayHost: relayHost,
		})
	}
	return candidates
}

func usable(host string) bool {
	host = strings.TrimSpace(host)
	switch strings.ToUpper(host) {
	case "", "NULL", "0.0.0.0", "::":
		return false
	}
	return true
}

