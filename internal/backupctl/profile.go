package backupctl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL points at a backupd running locally with its default
// HTTP_LISTEN_ADDR.
const DefaultAPIURL = "http://localhost:8090"

// Profile holds defaults for the command line flags.
type Profile struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// DefaultProfilePath is ~/.config/pgbackup/config.yaml.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pgbackup", "config.yaml")
}

// LoadProfile reads path. A missing file yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}
