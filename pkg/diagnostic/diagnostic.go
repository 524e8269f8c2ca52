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

package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/credential"
)

// Stage names
const (
	StageResolve   = "resolve"
	StageLogin     = "login"
	StageFetch     = "fetch"
	StageThumbnail = "thumbnail"
)

// Stage is the outcome of one diagnostic step
type Stage struct {
	Name     string
	OK       bool
	Detail   string
	Duration time.Duration
	Err      error

	// Informational stages are reported but never fail the run
	Informational bool
}

// Report lists the stages in the order they ran
type Report struct {
	Stages []Stage
}

// OK reports whether every stage that is not informational passed
func (r *Report) OK() bool {
	if len(r.Stages) == 0 {
		return false
	}
	for _, s := range r.Stages {
		if !s.OK && !s.Informational {
			return false
		}
	}
	return true
}

func (r *Report) add(name string, started time.Time, detail string, err error) {
	r.addStage(name, started, detail, err, false)
}

func (r *Report) addStage(name string, started time.Time, detail string, err error, informational bool) {
	stage := Stage{
		Informational: informational,
		Name:     name,
		OK:       err == nil,
		Detail:   detail,
		Duration: time.Since(started),
		Err:      err,
	}
	if err != nil && detail == "" {
		stage.Detail = photoframe.UserMessage(err)
	}
	r.Stages = append(r.Stages, stage)
}

// Driver runs resolve, login, fetch and a thumbnail download end to end
type Driver struct {
	endpoint    photoframe.Endpoint
	sessions    *core.SessionManager
	credentials photoframe.CredentialSource
	fetcher     *photoframe.Fetcher
	sources     []photoframe.Source

	// OnDownload returns the writer the thumbnail body is copied to, given
	// the announced size (-1 when unknown). The body is discarded when nil.
	OnDownload func(size int64) io.Writer
}

// NewDriver creates a Driver probing sources one after the other. The first
// source is the configured one; the fetch stages of the others are
// informational. fetcher must hand out signed URLs, not proxy URLs.
func NewDriver(endpoint photoframe.Endpoint, sessions *core.SessionManager, credentials photoframe.CredentialSource, fetcher *photoframe.Fetcher, sources ...photoframe.Source) *Driver {
	return &Driver{
		endpoint:    endpoint,
		sessions:    sessions,
		credentials: credentials,
		fetcher:     fetcher,
		sources:     sources,
	}
}

// Run executes the stages. A failed resolve or login ends the run; every
// source is listed even when one fails. The session is logged out at the end.
func (d *Driver) Run(ctx context.Context) (report *Report) {
	report = &Report{}

	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Diagnostic run panicked: %v", r)
			report.add("panic", time.Now(), "", fmt.Errorf("diagnostic failed: %v", r))
		}
	}()

	started := time.Now()
	cand, err := d.endpoint.Adopt(ctx)
	if err != nil {
		report.add(StageResolve, started, "", err)
		return report
	}
	report.add(StageResolve, started, cand.String(), nil)

	started = time.Now()
	dev := d.loadCredential()
	s, err := d.sessions.Login(ctx, cand, dev)
	if err != nil {
		report.add(StageLogin, started, "", err)
		return report
	}
	defer d.sessions.Logout(context.Background())

	detail := "password"
	if dev != nil {
		detail = "password, device credential offered"
	}
	report.add(StageLogin, started, detail, nil)

	var sample *photoframe.Photo
	for i, source := range d.sources {
		started = time.Now()
		catalog, err := d.fetcher.Fetch(ctx, d.sessions.Client(), s, source)
		name := fmt.Sprintf("%s %s", StageFetch, source)
		if err != nil {
			report.addStage(name, started, "", err, i > 0)
			continue
		}
		report.addStage(name, started, fmt.Sprintf("%d photos", catalog.Len()), nil, i > 0)
		if sample == nil && catalog.Len() > 0 {
			sample = &catalog.Photos[0]
		}
	}

	if sample == nil {
		report.add(StageThumbnail, time.Now(), "", errors.New("no photo with a ready thumbnail to download"))
		return report
	}

	started = time.Now()
	n, err := d.download(ctx, s, sample.URL)
	if err != nil {
		report.add(StageThumbnail, started, "", err)
		return report
	}
	report.add(StageThumbnail, started, fmt.Sprintf("%s, %d bytes", sample.Filename, n), nil)

	return report
}

func (d *Driver) loadCredential() *credential.DeviceCredential {
	if d.credentials == nil {
		return nil
	}
	dev, err := d.credentials.Load()
	if err != nil {
		glog.Warningf("Ignoring device credential: %v", err)
		return nil
	}
	return dev
}

func (d *Driver) download(ctx context.Context, s *core.Session, raw string) (int64, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return 0, err
	}

	resp, err := d.sessions.Client().Download(ctx, s.Candidate, target)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("thumbnail download answered %d", resp.StatusCode)
	}

	var w io.Writer = io.Discard
	if d.OnDownload != nil {
		if hook := d.OnDownload(resp.ContentLength); hook != nil {
			w = hook
		}
	}
	return io.Copy(w, resp.Body)
}
