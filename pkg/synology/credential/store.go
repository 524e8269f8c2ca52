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

package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v2"
)

// DefaultFileName is the file the device credential is kept in
const DefaultFileName = "device.yml"

// DeviceCredential lets a registered device skip the OTP on later logins
type DeviceCredential struct {
	DeviceID   string    `yaml:"deviceId"`
	DeviceName string    `yaml:"deviceName,omitempty"`
	ServerHost string    `yaml:"serverHost"`
	CreatedAt  time.Time `yaml:"createdAt"`
}

// MatchesHost reports whether the credential was issued by host
func (c *DeviceCredential) MatchesHost(host string) bool {
	return strings.EqualFold(strings.TrimSpace(c.ServerHost), strings.TrimSpace(host))
}

// Store reads and writes a single device credential file
type Store struct {
	path string
}

// NewStore creates a Store for path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns ~/.config/syno-photos/device.yml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return DefaultFileName
	}
	return filepath.Join(dir, "syno-photos", DefaultFileName)
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored credential, or nil when none was registered yet
func (s *Store) Load() (*DeviceCredential, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	f, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read device credential: %w", err)
	}

	var cred DeviceCredential
	if err := yaml.Unmarshal(f, &cred); err != nil {
		return nil, fmt.Errorf("parse device credential %s: %w", s.path, err)
	}
	if cred.DeviceID == "" {
		glog.Warningf("Device credential %s has no device id, ignoring it", s.path)
		return nil, nil
	}

	return &cred, nil
}

// Save replaces the stored credential
func (s *Store) Save(cred DeviceCredential) error {
	if cred.DeviceID == "" {
		return errors.New("device credential has no device id")
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	out, err := yaml.Marshal(&cred)
	if err != nil {
		return fmt.Errorf("encode device credential: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write device credential: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write device credential: %w", err)
	}

	glog.Infof("Saved device credential for %s to %s", cred.ServerHost, s.path)
	return nil
}

// Remove deletes the stored credential; a missing file is not an error
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
