package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// dumpConfig holds the defaults hydralog-dump applies when the matching
// flag wasn't given on the command line.
type dumpConfig struct {
	OutFormat string   `json:"out_format,omitempty"` //nolint:tagliatelle // snake_case for config file
	Fields    []string `json:"fields,omitempty"`
}

// configFileName is the default project config file name.
const configFileName = ".hydralog-dump.json"

// getGlobalConfigPath returns $XDG_CONFIG_HOME/hydralog/dump.json, falling
// back to ~/.config/hydralog/dump.json. Empty if no home directory is known.
func getGlobalConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hydralog", "dump.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "hydralog", "dump.json")
}

// loadConfig merges the global config, a project config (.hydralog-dump.json
// in workDir), and an explicit config file named via --config, in that order
// of increasing precedence. Any file that doesn't exist is skipped silently,
// except an explicitly named one, which must exist.
func loadConfig(workDir, explicitPath string) (dumpConfig, error) {
	var cfg dumpConfig

	if global := getGlobalConfigPath(); global != "" {
		loaded, ok, err := loadConfigFile(global, false)
		if err != nil {
			return dumpConfig{}, err
		}

		if ok {
			cfg = mergeConfig(cfg, loaded)
		}
	}

	project := filepath.Join(workDir, configFileName)

	loaded, ok, err := loadConfigFile(project, false)
	if err != nil {
		return dumpConfig{}, err
	}

	if ok {
		cfg = mergeConfig(cfg, loaded)
	}

	if explicitPath != "" {
		loaded, _, err := loadConfigFile(explicitPath, true)
		if err != nil {
			return dumpConfig{}, err
		}

		cfg = mergeConfig(cfg, loaded)
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (dumpConfig, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return dumpConfig{}, false, nil
		}

		return dumpConfig{}, false, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return dumpConfig{}, false, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var cfg dumpConfig

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return dumpConfig{}, false, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay dumpConfig) dumpConfig {
	out := base

	if overlay.OutFormat != "" {
		out.OutFormat = overlay.OutFormat
	}

	if len(overlay.Fields) > 0 {
		out.Fields = overlay.Fields
	}

	return out
}

func splitFields(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	fields := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			fields = append(fields, p)
		}
	}

	return fields
}
