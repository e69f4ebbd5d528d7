// Package config locates the voicetrust CLI configuration and data.
//
// Everything lives under os.UserConfigDir()/voicetrust/:
//
//	voicetrust/
//	├── config.yaml     # engine configuration (optional)
//	├── profiles/       # badger database of enrollments and profiles
//	└── artifacts/      # default calibration output
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

const (
	appDir       = "voicetrust"
	configFile   = "config.yaml"
	profilesDir  = "profiles"
	artifactsDir = "artifacts"
)

// Paths is the CLI directory layout rooted at Dir.
type Paths struct {
	Dir string
}

// Default returns the layout under os.UserConfigDir().
func Default() (Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return Paths{Dir: filepath.Join(base, appDir)}, nil
}

// ConfigFile returns the default engine configuration path.
func (p Paths) ConfigFile() string { return filepath.Join(p.Dir, configFile) }

// ProfilesDir returns the profile database directory.
func (p Paths) ProfilesDir() string { return filepath.Join(p.Dir, profilesDir) }

// ArtifactsDir returns the default calibration artifact directory.
func (p Paths) ArtifactsDir() string { return filepath.Join(p.Dir, artifactsDir) }

// LoadEngine loads the engine configuration from path. With an empty path
// the default config file is used if it exists, and the built-in defaults
// otherwise. It returns the file actually read, or "".
func (p Paths) LoadEngine(path string) (voicetrust.Config, string, error) {
	if path != "" {
		cfg, err := voicetrust.LoadConfig(path)
		return cfg, path, err
	}
	path = p.ConfigFile()
	cfg, err := voicetrust.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return voicetrust.DefaultConfig(), "", nil
	}
	return cfg, path, err
}
