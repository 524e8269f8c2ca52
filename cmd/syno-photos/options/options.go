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

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/credential"
	"github.com/jparklab/synology-photos/pkg/synology/options"
)

const (
	// PasswordEnv overrides an empty password of the config file
	PasswordEnv = "SYNO_PASSWORD"
	// DeviceIDEnv provides a device id when the config has none
	DeviceIDEnv = "DEVICE_ID"

	// DefaultListen is the address the frame server binds to
	DefaultListen = ":8080"
)

// RunOptions stores option values
type RunOptions struct {
	ConfigPath string
	DeviceFile string
	Listen     string

	// register
	Otp        string
	TotpSecret string
	DeviceName string
}

// NewRunOptions creates a default option object
func NewRunOptions() *RunOptions {
	return &RunOptions{
		ConfigPath: "config.yml",
		DeviceFile: credential.DefaultPath(),
		Listen:     DefaultListen,
	}
}

// AddFlags adds the options shared by every command
func (o *RunOptions) AddFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", o.ConfigPath, "Synology Photos config yaml file")
	fs.StringVar(&o.DeviceFile, "device-file", o.DeviceFile, "File the registered device credential is kept in")
}

// AddServeFlags adds the options of the serve command
func (o *RunOptions) AddServeFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Listen, "listen", o.Listen, "Address the frame server listens on")
}

// AddRegisterFlags adds the options of the register command
func (o *RunOptions) AddRegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Otp, "otp", o.Otp, "6-digit 2-step verification code")
	fs.StringVar(&o.TotpSecret, "totp-secret", o.TotpSecret, "Base32 TOTP secret to compute the code from")
	fs.StringVar(&o.DeviceName, "device-name", o.DeviceName, "Name the device is registered under")
}

// Config is the content of the config file
type Config struct {
	options.SynologyOptions `yaml:",inline"`
	options.PhotoOptions    `yaml:",inline"`
}

// ReadConfig reads synology configuration file
func ReadConfig(path string) (*Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		glog.V(1).Infof("Unable to open config file: %v", err)
		return nil, err
	}

	conf := Config{
		SynologyOptions: options.NewSynologyOptions(),
		PhotoOptions:    options.NewPhotoOptions(),
	}
	err = yaml.Unmarshal(f, &conf)
	if err != nil {
		glog.V(1).Infof("Failed to parse config: %v", err)
		return nil, err
	}

	if err := conf.complete(); err != nil {
		glog.V(1).Infof("Invalid config: %v", err)
		return nil, err
	}

	return &conf, nil
}

func (c *Config) complete() error {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Username == "" {
		return errors.New("username is required")
	}

	if c.Password == "" {
		c.Password = os.Getenv(PasswordEnv)
		if c.Password != "" {
			glog.Infof("Using password from %s", PasswordEnv)
		}
	}

	if c.LoginApiVersion <= 0 {
		c.LoginApiVersion = options.DefaultLoginApiVersion
	}
	if c.LoginApiVersion >= 6 {
		if c.DeviceId == nil || *c.DeviceId == "" {
			deviceID := os.Getenv(DeviceIDEnv)
			if deviceID != "" {
				glog.Infof("Using %s from environment variables", DeviceIDEnv)
				c.DeviceId = &deviceID
			} else {
				c.DeviceId = nil
			}
		}
	} else if c.DeviceId != nil {
		glog.Warningf("Login api version %d does not support device tokens, ignoring deviceId", c.LoginApiVersion)
		c.DeviceId = nil
	}

	if c.SessionName == "" {
		c.SessionName = options.DefaultSessionName
	}
	if c.Port <= 0 {
		c.Port = options.DefaultPort
	}
	if c.Limit <= 0 {
		c.Limit = options.DefaultLimit
	}
	c.ThumbnailSize = strings.ToLower(strings.TrimSpace(c.ThumbnailSize))
	if c.ThumbnailSize == "" {
		c.ThumbnailSize = options.DefaultThumbnailSize
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = options.DefaultRefreshInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = options.DefaultRequestTimeout
	}
	if c.ProxyPath == "" {
		c.ProxyPath = options.NewPhotoOptions().ProxyPath
	}
	if !strings.HasPrefix(c.ProxyPath, "/") {
		return fmt.Errorf("proxyPath must start with /: %q", c.ProxyPath)
	}

	if _, err := c.CodeTable(); err != nil {
		return err
	}
	return nil
}

// CodeTable returns the default error code table with the config overrides applied
func (c *Config) CodeTable() (*core.CodeTable, error) {
	codes := core.DefaultCodeTable()
	if err := codes.Override(c.AuthErrorCodes, c.SessionErrorCodes); err != nil {
		return nil, err
	}
	return codes, nil
}

// DeviceCredentials returns the registered device credential, falling back
// to the device id of the config
func (c *Config) DeviceCredentials(store *credential.Store) *DeviceCredentials {
	dc := &DeviceCredentials{store: store}
	if c.DeviceId != nil && *c.DeviceId != "" {
		dc.fallback = &credential.DeviceCredential{
			DeviceID:   *c.DeviceId,
			ServerHost: c.Host,
		}
		if c.DeviceName != nil {
			dc.fallback.DeviceName = *c.DeviceName
		}
	}
	return dc
}

// DeviceCredentials loads the credential offered at login
type DeviceCredentials struct {
	store    *credential.Store
	fallback *credential.DeviceCredential
}

// Load returns the stored credential or the configured one, nil when neither exists
func (d *DeviceCredentials) Load() (*credential.DeviceCredential, error) {
	cred, err := d.store.Load()
	if err != nil {
		return nil, err
	}
	if cred != nil {
		return cred, nil
	}
	return d.fallback, nil
}
