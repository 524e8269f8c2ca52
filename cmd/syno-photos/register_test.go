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
	"bytes"
	"strings"
	"testing"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/synology/api/photos"
)

func TestOtpCode(t *testing.T) {
	var out bytes.Buffer

	code, err := otpCode(&options.RunOptions{Otp: " 123456 "}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	code, err = otpCode(&options.RunOptions{}, strings.NewReader("654321\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "654321", code)
	assert.Contains(t, out.String(), "verification code")

	_, err = otpCode(&options.RunOptions{}, strings.NewReader(""), &out)
	assert.Error(t, err)
}

func TestOtpCodeFromSecret(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"

	code, err := otpCode(&options.RunOptions{TotpSecret: strings.ToLower(secret)}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Len(t, code, 6)
	// Validate accepts one period of skew
	assert.True(t, totp.Validate(code, secret))
}

func TestDeviceName(t *testing.T) {
	configured := "living-room"

	assert.Equal(t, "kitchen", deviceName(&options.RunOptions{DeviceName: "kitchen"}, &configured))
	assert.Equal(t, "living-room", deviceName(&options.RunOptions{}, &configured))

	generated := deviceName(&options.RunOptions{}, nil)
	assert.True(t, strings.HasPrefix(generated, "syno-photos-"))
	assert.NotEqual(t, generated, deviceName(&options.RunOptions{}, nil))
}

func TestDiagnoseSources(t *testing.T) {
	album := photoframe.Source{Kind: photoframe.SourceAlbum, ID: 3}
	sources := diagnoseSources(album)
	require.Len(t, sources, 3)
	assert.Equal(t, album, sources[0])
	assert.Equal(t, photos.SharedSpace, sources[2].Space)

	sources = diagnoseSources(photoframe.Source{Kind: photoframe.SourcePersonal})
	assert.Len(t, sources, 2)
}
