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

// Package config assembles the runtime configuration from a .env file and
// the process environment. Credentials and timeouts live here; file paths
// and filters are flags on the binary. Each collaborator validates its own
// section, so loading never fails on missing values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ornatel/fieldscan/pkg/digil"
	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/probe"
	"github.com/ornatel/fieldscan/pkg/relay"
)

// DefaultEnvFile is looked for in the working directory when no explicit
// path is given.
const DefaultEnvFile = ".env"

// Config is the full runtime configuration of one diagnostic run.
type Config struct {
	Bridge  relay.Config
	Probe   probe.Config
	Workers int
	Store   metricstore.Config
	API     digil.Config
	Logging logger.Config
}

// Load reads envFile when it exists, then builds the configuration from
// the environment. A missing default .env is not an error; an explicitly
// named file that cannot be read is.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}

	if err := godotenv.Load(envFile); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	return FromEnv(), nil
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	probeCfg := probe.DefaultConfig()
	probeCfg.CommandTimeout = envSeconds("DEVICE_TIMEOUT", probeCfg.CommandTimeout)
	probeCfg.Port = envInt("SSH_PORT", probeCfg.Port)

	return &Config{
		Bridge: relay.Config{
			Host:     envString("BRIDGE_HOST", ""),
			User:     envString("BRIDGE_USER", ""),
			Password: envString("BRIDGE_PASSWORD", ""),
			Port:     envInt("BRIDGE_PORT", 0),
			Timeout:  envSeconds("BRIDGE_TIMEOUT", 0),
		},
		Probe:   probeCfg,
		Workers: envInt("MAX_WORKERS", 0),
		Store: metricstore.Config{
			URI:             envString("MONGO_URI", ""),
			Database:        envString("MONGO_DATABASE", ""),
			Collection:      envString("MONGO_COLLECTION", ""),
			DiagsCollection: envString("MONGO_COLLECTION_DIAGS", ""),
		},
		API: digil.Config{
			TokenURL:           envString("DIGIL_TOKEN_URL", ""),
			APIURL:             envString("DIGIL_API_URL", ""),
			ClientID:           envString("DIGIL_CLIENT_ID", ""),
			ClientSecret:       envString("DIGIL_CLIENT_SECRET", ""),
			Timeout:            envSeconds("DIGIL_TIMEOUT", 0),
			InsecureSkipVerify: envBool("DIGIL_SKIP_TLS_VERIFY", false),
		},
		Logging: logger.Config{
			Level:  envString("LOG_LEVEL", "info"),
			Output: envString("LOG_OUTPUT", "stderr"),
		},
	}
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}

	return fallback
}

func envInt(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

// envSeconds reads a duration expressed as a plain number of seconds,
// the form the deployment's .env files already use.
func envSeconds(name string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return fallback
	}

	return time.Duration(n * float64(time.Second))
}

func envBool(name string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}

	return b
}
