/*
 * Copyright 2026 Ornatel S.r.l.
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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvReadsTheFullEnvironment(t *testing.T) {
	t.Setenv("BRIDGE_HOST", "bridge.example.net")
	t.Setenv("BRIDGE_USER", "svc-fieldscan")
	t.Setenv("BRIDGE_PASSWORD", "secret")
	t.Setenv("BRIDGE_TIMEOUT", "15")
	t.Setenv("DEVICE_TIMEOUT", "20")
	t.Setenv("SSH_PORT", "2222")
	t.Setenv("MAX_WORKERS", "25")
	t.Setenv("MONGO_URI", "mongodb://u:p@a:27017,b:27017/?replicaSet=rs0")
	t.Setenv("DIGIL_TOKEN_URL", "https://iam.example.net/token")
	t.Setenv("DIGIL_API_URL", "https://api.example.net/api/v1")
	t.Setenv("DIGIL_CLIENT_ID", "id")
	t.Setenv("DIGIL_CLIENT_SECRET", "sec")
	t.Setenv("DIGIL_SKIP_TLS_VERIFY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()

	assert.Equal(t, "bridge.example.net", cfg.Bridge.Host)
	assert.Equal(t, "svc-fieldscan", cfg.Bridge.User)
	assert.Equal(t, 15*time.Second, cfg.Bridge.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Probe.CommandTimeout)
	assert.Equal(t, 2222, cfg.Probe.Port)
	assert.Equal(t, 25, cfg.Workers)
	assert.Equal(t, "mongodb://u:p@a:27017,b:27017/?replicaSet=rs0", cfg.Store.URI)
	assert.Equal(t, "id", cfg.API.ClientID)
	assert.True(t, cfg.API.InsecureSkipVerify)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFromEnvKeepsProbeDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, 5*time.Minute, cfg.Probe.MasterPingBudget)
	assert.Equal(t, 20*time.Minute, cfg.Probe.SlavePingBudget)
	assert.Equal(t, 22, cfg.Probe.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MAX_WORKERS", "many")
	t.Setenv("DEVICE_TIMEOUT", "-5")

	cfg := FromEnv()

	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.Probe.CommandTimeout)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.env")
	require.NoError(t, os.WriteFile(path, []byte("BRIDGE_HOST=from-file\n"), 0o600))

	// godotenv never overrides variables already set in the process
	t.Setenv("BRIDGE_HOST", "")
	os.Unsetenv("BRIDGE_HOST")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Bridge.Host)
}

func TestLoadFailsOnMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestLoadToleratesMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("")
	require.NoError(t, err)
}
