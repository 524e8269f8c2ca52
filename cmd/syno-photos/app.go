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

package main

import (
	"fmt"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/synology/core"
	"github.com/jparklab/synology-photos/pkg/synology/credential"
	"github.com/jparklab/synology-photos/pkg/synology/resolver"
)

// app holds the components every command is built from
type app struct {
	conf        *options.Config
	client      *core.Client
	resolver    *resolver.Resolver
	sessions    *core.SessionManager
	store       *credential.Store
	credentials *options.DeviceCredentials
}

func newApp(o *options.RunOptions) (*app, error) {
	conf, err := options.ReadConfig(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	codes, err := conf.CodeTable()
	if err != nil {
		return nil, err
	}

	target, err := resolver.ParseTarget(conf.Host, conf.Port)
	if err != nil {
		return nil, err
	}

	client := core.NewClient(conf.RequestTimeout, codes)
	discoverer := resolver.NewDiscoverer(conf.RelayRegion, conf.RequestTimeout)
	store := credential.NewStore(o.DeviceFile)

	return &app{
		conf:        conf,
		client:      client,
		resolver:    resolver.New(target, conf.Secure, discoverer, client),
		sessions:    core.NewSessionManager(client, conf.SynologyOptions),
		store:       store,
		credentials: conf.DeviceCredentials(store),
	}, nil
}
