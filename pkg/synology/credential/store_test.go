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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "device.yml"))

	cred, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, cred)
}

func TestStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.yml")
	store := NewStore(path)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := store.Save(DeviceCredential{
		DeviceID:   "device-1",
		DeviceName: "frame",
		ServerHost: "nas.example.com",
		CreatedAt:  created,
	})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cred, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "device-1", cred.DeviceID)
	assert.Equal(t, "frame", cred.DeviceName)
	assert.Equal(t, "nas.example.com", cred.ServerHost)
	assert.True(t, created.Equal(cred.CreatedAt))

	require.NoError(t, store.Remove())
	cred, err = store.Load()
	assert.NoError(t, err)
	assert.Nil(t, cred)

	// removing twice is fine
	assert.NoError(t, store.Remove())
}

func TestStoreSaveRequiresDeviceID(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "device.yml"))
	assert.Error(t, store.Save(DeviceCredential{ServerHost: "nas"}))
}

func TestStoreLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yml")

	require.NoError(t, os.WriteFile(path, []byte("deviceId: [broken"), 0o600))
	_, err := NewStore(path).Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("serverHost: nas\n"), 0o600))
	cred, err := NewStore(path).Load()
	assert.NoError(t, err)
	assert.Nil(t, cred)
}

func TestMatchesHost(t *testing.T) {
	cred := DeviceCredential{DeviceID: "d", ServerHost: "NAS.example.com"}

	assert.True(t, cred.MatchesHost("nas.example.com"))
	assert.False(t, cred.MatchesHost("192.168.1.20"))
}
