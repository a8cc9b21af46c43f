// Package configuration loads the runtime configuration of the federated file
// system from .env or YAML files and the process environment.
package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const keyPrefix = "ARCVFS_"

// The configuration keys.
const (
	KeyMaxMounts      = keyPrefix + "MAX_MOUNTS"
	KeySpoolThreshold = keyPrefix + "SPOOL_THRESHOLD"
	KeyTempDir        = keyPrefix + "TEMP_DIR"
	KeyMinTempFree    = keyPrefix + "MIN_TEMP_FREE"
	KeySyncTimeout    = keyPrefix + "SYNC_TIMEOUT"
	KeyKeyEnv         = keyPrefix + "KEY_ENV"
)

const (
	defaultMaxMounts      = 5
	defaultSpoolThreshold = 1 << 20
	defaultKeyEnv         = "ARCVFS_PASSPHRASE"

	// minMaxMounts is the smallest bound of mounted archives which still
	// allows a nested archive to be accessed.
	minMaxMounts = 2
)

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Config is the runtime configuration. It is built once at startup and
// passed to the components which need it.
type Config struct {
	// MaxMounts bounds the number of recently used mounted archives.
	MaxMounts int

	// SpoolThreshold is the number of bytes a temporary buffer keeps in
	// memory before spilling to a file.
	SpoolThreshold int64

	// TempDir is the directory of spilled temporary buffers.
	TempDir string

	// MinTempFree is the minimum number of free bytes required in TempDir
	// before a buffer spills, zero disables the check.
	MinTempFree uint64

	// SyncTimeout bounds waiting for open streams of other owners, zero waits
	// until the context is done.
	SyncTimeout time.Duration

	// KeyEnv names the environment variable holding the archive passphrase.
	KeyEnv string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MaxMounts:      defaultMaxMounts,
		SpoolThreshold: defaultSpoolThreshold,
		TempDir:        os.TempDir(),
		KeyEnv:         defaultKeyEnv,
	}
}

// Handler loads a [Config] through the configuration providers.
type Handler struct {
	envProvider  genericConfigProvider
	yamlProvider genericConfigProvider
	lookupEnv    func(key string) (string, bool)
}

// NewHandler returns a pointer to a new [Handler]. Files ending in .yaml or
// .yml are read by yamlProvider, all others by envProvider.
func NewHandler(envProvider, yamlProvider genericConfigProvider) *Handler {
	return &Handler{
		envProvider:  envProvider,
		yamlProvider: yamlProvider,
		lookupEnv:    os.LookupEnv,
	}
}

// Load returns the default configuration overridden by the given files in
// order and finally by the process environment.
func (h *Handler) Load(filenames ...string) (Config, error) {
	envMap := make(map[string]string)

	for _, filename := range filenames {
		provider := h.envProvider
		if ext := strings.ToLower(filepath.Ext(filename)); ext == ".yaml" || ext == ".yml" {
			provider = h.yamlProvider
		}
		if provider == nil {
			return Config{}, fmt.Errorf("(config-load) %w: %s", ErrNoProvider, filename)
		}

		data, err := provider.Read(filename)
		if err != nil {
			return Config{}, fmt.Errorf("(config-load) %w", err)
		}

		for key, value := range data {
			envMap[key] = value
		}
	}

	for _, key := range []string{KeyMaxMounts, KeySpoolThreshold, KeyTempDir, KeyMinTempFree, KeySyncTimeout, KeyKeyEnv} {
		if value, ok := h.lookupEnv(key); ok {
			envMap[key] = value
		}
	}

	config, err := Parse(envMap)
	if err != nil {
		return Config{}, fmt.Errorf("(config-load) %w", err)
	}

	return config, nil
}

// Parse returns the default configuration overridden by envMap.
func Parse(envMap map[string]string) (Config, error) {
	config := Default()

	if v, ok, err := mapKeyToInt64(envMap, KeyMaxMounts); err != nil {
		return Config{}, err
	} else if ok {
		if v < minMaxMounts {
			return Config{}, fmt.Errorf("%w: %s=%d is below %d", ErrInvalidValue, KeyMaxMounts, v, minMaxMounts)
		}
		config.MaxMounts = int(v)
	}

	if v, ok, err := mapKeyToBytes(envMap, KeySpoolThreshold); err != nil {
		return Config{}, err
	} else if ok {
		config.SpoolThreshold = int64(v) //nolint:gosec
	}

	if v, ok, err := mapKeyToBytes(envMap, KeyMinTempFree); err != nil {
		return Config{}, err
	} else if ok {
		config.MinTempFree = v
	}

	if v, ok, err := mapKeyToDuration(envMap, KeySyncTimeout); err != nil {
		return Config{}, err
	} else if ok {
		config.SyncTimeout = v
	}

	if v := mapKeyToString(envMap, KeyTempDir); v != "" {
		config.TempDir = v
	}

	if v := mapKeyToString(envMap, KeyKeyEnv); v != "" {
		config.KeyEnv = v
	}

	return config, nil
}

func mapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return strings.TrimSpace(value)
	}

	return ""
}

func mapKeyToInt64(envMap map[string]string, key string) (int64, bool, error) {
	value := mapKeyToString(envMap, key)
	if value == "" {
		return 0, false, nil
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	return intValue, true, nil
}

// mapKeyToBytes accepts plain byte counts as well as sizes like "64 MiB".
func mapKeyToBytes(envMap map[string]string, key string) (uint64, bool, error) {
	value := mapKeyToString(envMap, key)
	if value == "" {
		return 0, false, nil
	}

	size, err := humanize.ParseBytes(value)
	if err != nil || size > 1<<62 {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	return size, true, nil
}

func mapKeyToDuration(envMap map[string]string, key string) (time.Duration, bool, error) {
	value := mapKeyToString(envMap, key)
	if value == "" {
		return 0, false, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	return d, true, nil
}
