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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/credential"
)

// Endpoint hands out the adopted connection candidate
type Endpoint interface {
	Adopt(ctx context.Context) (core.Candidate, error)
	Forget()
}

// CredentialSource loads the device credential, nil when none is registered
type CredentialSource interface {
	Load() (*credential.DeviceCredential, error)
}

// Result is the outcome of one fetch cycle
type Result struct {
	Catalog *Catalog
	Err     error
	At      time.Time
}

// Listener is notified once per completed fetch cycle
type Listener func(Result)

type cycleError struct {
	err error
	at  time.Time
}

// Pipeline runs resolve -> authenticate -> fetch and owns the published
// catalog. Catalog and session are replaced by atomic swap.
type Pipeline struct {
	endpoint    Endpoint
	sessions    *core.SessionManager
	credentials CredentialSource
	fetcher     *Fetcher
	source      Source

	catalog atomic.Pointer[Catalog]
	lastErr atomic.Pointer[cycleError]

	mu        sync.Mutex
	listeners []Listener
}

// NewPipeline creates a Pipeline. credentials may be nil.
func NewPipeline(endpoint Endpoint, sessions *core.SessionManager, credentials CredentialSource, fetcher *Fetcher, source Source) *Pipeline {
	return &Pipeline{
		endpoint:    endpoint,
		sessions:    sessions,
		credentials: credentials,
		fetcher:     fetcher,
		source:      source,
	}
}

// Subscribe registers a listener for cycle results
func (p *Pipeline) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Catalog returns the last published catalog, nil before the first success
func (p *Pipeline) Catalog() *Catalog {
	return p.catalog.Load()
}

// LastFailure returns when the last cycle failed and why. The error is nil
// once a later cycle succeeded.
func (p *Pipeline) LastFailure() (time.Time, error) {
	last := p.lastErr.Load()
	if last == nil {
		return time.Time{}, nil
	}
	return last.at, last.err
}

// Source returns the configured photo source
func (p *Pipeline) Source() Source {
	return p.source
}

// Sessions returns the session manager
func (p *Pipeline) Sessions() *core.SessionManager {
	return p.sessions
}

// Run performs one fetch cycle. On success the catalog is replaced; on
// failure the previous catalog stays published and the error is recorded.
func (p *Pipeline) Run(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Fetch cycle panicked: %v", r)
			result = p.finish(nil, fmt.Errorf("fetch cycle failed: %v", r))
		}
	}()

	catalog, err := p.cycle(ctx)
	return p.finish(catalog, err)
}

func (p *Pipeline) cycle(ctx context.Context) (*Catalog, error) {
	cand, err := p.endpoint.Adopt(ctx)
	if err != nil {
		return nil, err
	}

	s := p.sessions.Current()
	if s != nil && s.Candidate != cand {
		glog.Infof("Adopted %s, dropping the session of %s", cand, s.Candidate)
		p.sessions.Invalidate(s)
		// the old candidate may be unreachable
		go p.sessions.LogoutSession(context.Background(), s)
		s = nil
	}
	if s == nil {
		if s, err = p.login(ctx, cand); err != nil {
			return nil, err
		}
	}

	catalog, err := p.fetcher.Fetch(ctx, p.sessions.Client(), s, p.source)
	if err != nil && errors.Is(err, core.ErrSessionExpired) {
		glog.Infof("Session expired, logging in again: %v", err)
		p.sessions.Invalidate(s)

		if s, err = p.login(ctx, cand); err != nil {
			return nil, err
		}
		catalog, err = p.fetcher.Fetch(ctx, p.sessions.Client(), s, p.source)
	}
	if err != nil {
		p.forgetOnTransportError(err)
		return nil, err
	}

	return catalog, nil
}

func (p *Pipeline) login(ctx context.Context, cand core.Candidate) (*core.Session, error) {
	var dev *credential.DeviceCredential
	if p.credentials != nil {
		loaded, err := p.credentials.Load()
		if err != nil {
			glog.Warningf("Ignoring device credential: %v", err)
		} else {
			dev = loaded
		}
	}

	s, err := p.sessions.Login(ctx, cand, dev)
	if err != nil {
		p.forgetOnTransportError(err)
		return nil, err
	}
	return s, nil
}

// forgetOnTransportError makes the next cycle probe the candidates again
// when the adopted one stopped answering
func (p *Pipeline) forgetOnTransportError(err error) {
	var transportErr *core.TransportError
	if errors.As(err, &transportErr) {
		p.endpoint.Forget()
	}
}

func (p *Pipeline) finish(catalog *Catalog, err error) Result {
	now := time.Now().UTC()
	result := Result{At: now}

	if err != nil {
		glog.Errorf("Fetch cycle failed: %v", err)
		p.lastErr.Store(&cycleError{err: err, at: now})
		result.Err = err
		result.Catalog = p.catalog.Load()
	} else {
		glog.Infof("Fetched %d photos from %s", catalog.Len(), catalog.Source)
		p.catalog.Store(catalog)
		p.lastErr.Store(nil)
		result.Catalog = catalog
	}

	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	for _, l := range listeners {
		l(result)
	}
	return result
}

// Close logs out of the live session
func (p *Pipeline) Close(ctx context.Context) {
	p.sessions.Logout(ctx)
}

// UserMessage turns a cycle error into a message for the display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var authErr *core.AuthError
	var resolutionErr *core.ResolutionError
	var fetchErr *core.FetchError

	switch {
	case errors.As(err, &authErr) && authErr.NeedsOtp():
		return "The NAS asks for a 2-step verification code. Register this device with `syno-photos register`."
	case errors.As(err, &authErr) && authErr.Kind == core.AuthInvalidCredentials:
		return "Login failed: wrong account or password."
	case errors.As(err, &authErr):
		return fmt.Sprintf("Login failed: %s.", authErr.Kind)
	case errors.As(err, &resolutionErr):
		return fmt.Sprintf("Cannot reach the NAS at %s.", resolutionErr.Address)
	case errors.As(err, &fetchErr):
		return fmt.Sprintf("Cannot list photos from %s: %s.", fetchErr.Source, fetchErr.Kind)
	default:
		return err.Error()
	}
}
