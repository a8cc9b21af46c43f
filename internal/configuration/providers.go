package configuration

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GodotenvProvider is an implementation wrapping the Godotenv framework.
type GodotenvProvider struct{}

// Read reads generic Unix-type configuration files into a map (map[key]value).
func (*GodotenvProvider) Read(filenames ...string) (map[string]string, error) {
	data, err := godotenv.Read(filenames...)
	if err != nil {
		return data, fmt.Errorf("(config-godotenv) %w", err)
	}

	return data, nil
}

// YAMLProvider reads flat YAML documents of scalar values. Keys may be given
// either as environment keys (ARCVFS_MAX_MOUNTS) or in their short form
// (max_mounts).
type YAMLProvider struct{}

// Read reads the YAML configuration files into a map (map[key]value). Later
// files override earlier ones.
func (*YAMLProvider) Read(filenames ...string) (map[string]string, error) {
	data := make(map[string]string)

	for _, filename := range filenames {
		content, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("(config-yaml) %w", err)
		}

		var doc map[string]any
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("(config-yaml) %s: %w", filename, err)
		}

		for key, value := range doc {
			switch value.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("(config-yaml) %w: %s: %q is not a scalar", ErrInvalidValue, filename, key)
			case nil:
				continue
			}

			data[envKey(key)] = fmt.Sprint(value)
		}
	}

	return data, nil
}

// envKey returns the environment key of a short YAML key.
func envKey(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	if strings.HasPrefix(key, keyPrefix) {
		return key
	}

	return keyPrefix + key
}
