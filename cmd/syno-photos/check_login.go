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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/photoframe"
)

func newCheckLoginCmd(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-login",
		Short: "Just try to login and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cand, err := a.resolver.Adopt(ctx)
			if err != nil {
				fmt.Printf("Failed to resolve: %s\n", photoframe.UserMessage(err))
				return err
			}

			dev, err := a.credentials.Load()
			if err != nil {
				fmt.Printf("Ignoring device credential: %v\n", err)
				dev = nil
			}

			s, err := a.sessions.Login(ctx, cand, dev)
			if err != nil {
				fmt.Printf("Failed to login: %s\n", photoframe.UserMessage(err))
				return err
			}

			fmt.Printf("Logged in as %s via %s\n", a.conf.Username, s.Candidate)
			a.sessions.Logout(ctx)
			return nil
		},
	}
}
