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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pborman/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/synology/credential"
)

func newRegisterCmd(o *options.RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Log in with a 2-step verification code and remember this device",
		Long: `register logs in once with a 2-step verification code and asks the NAS
for a device token. Later logins offer the token and skip the verification code.
The code is taken from --otp, computed from --totp-secret or read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runRegister(ctx, a, o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	o.AddRegisterFlags(cmd.Flags())
	return cmd
}

func runRegister(ctx context.Context, a *app, o *options.RunOptions, in io.Reader, out io.Writer) error {
	cand, err := a.resolver.Adopt(ctx)
	if err != nil {
		fmt.Fprintf(out, "Failed to resolve: %s\n", photoframe.UserMessage(err))
		return err
	}

	code, err := otpCode(o, in, out)
	if err != nil {
		return err
	}

	deviceName := deviceName(o, a.conf.DeviceName)
	s, err := a.sessions.LoginWith(ctx, cand, a.conf.WithoutDevice().WithOtp(code, deviceName))
	if err != nil {
		fmt.Fprintf(out, "Failed to login: %s\n", photoframe.UserMessage(err))
		return err
	}
	defer a.sessions.LogoutSession(ctx, s)

	if s.DeviceID == "" {
		return errors.New("the NAS did not issue a device id, is login api version 6 or later configured?")
	}

	cred := credential.DeviceCredential{
		DeviceID:   s.DeviceID,
		DeviceName: deviceName,
		ServerHost: cand.Host(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.Save(cred); err != nil {
		return err
	}

	fmt.Fprintf(out, "Registered %s with %s, saved to %s\n", deviceName, cred.ServerHost, a.store.Path())
	return nil
}

func otpCode(o *options.RunOptions, in io.Reader, out io.Writer) (string, error) {
	if o.TotpSecret != "" {
		code, err := totp.GenerateCode(strings.ToUpper(strings.TrimSpace(o.TotpSecret)), time.Now())
		if err != nil {
			return "", fmt.Errorf("invalid totp secret: %w", err)
		}
		return code, nil
	}

	if o.Otp != "" {
		return strings.TrimSpace(o.Otp), nil
	}

	fmt.Fprint(out, "2-step verification code: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no verification code given")
	}
	return code, nil
}

func deviceName(o *options.RunOptions, configured *string) string {
	if o.DeviceName != "" {
		return o.DeviceName
	}
	if configured != nil && *configured != "" {
		return *configured
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "frame"
	}
	return fmt.Sprintf("syno-photos-%s-%s", host, uuid.New()[:8])
}
