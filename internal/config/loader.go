package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".streamscout"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads site profiles from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, when specified
// 2. .streamscout in the current directory
// 3. .streamscout in the user's home directory
// 4. config.yaml in the XDG config directory
//
// It returns an empty string when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Apply resolves the site profile for c.BaseURL from the file and fills the
// fields the user left unset: the category, the group label and additional
// blocklist entries. A nil file applies the built-in profile only.
func (c *Config) Apply(file *File) {
	if file == nil {
		file = &File{}
	}
	c.Site = file.GetSiteConfig(c.Host())

	if c.Category == "" {
		c.Category = c.Site.Category
	}
	if len(c.Site.Blocklist) > 0 {
		merged := make([]string, 0, len(c.Blocklist)+len(c.Site.Blocklist))
		merged = append(merged, c.Blocklist...)
		merged = append(merged, c.Site.Blocklist...)
		c.Blocklist = merged
	}
}
