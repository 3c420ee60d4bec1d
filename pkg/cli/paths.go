package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the per-user directories of an app. It follows the XDG
// base directory layout, honoring XDG_CONFIG_HOME, XDG_CACHE_HOME and
// XDG_DATA_HOME when set.
type Paths struct {
	AppName string
	HomeDir string

	configHome string
	cacheHome  string
	dataHome   string
}

// NewPaths resolves the directories of appName.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName:    appName,
		HomeDir:    home,
		configHome: xdg("XDG_CONFIG_HOME", home, ".config"),
		cacheHome:  xdg("XDG_CACHE_HOME", home, ".cache"),
		dataHome:   xdg("XDG_DATA_HOME", home, ".local", "share"),
	}, nil
}

func xdg(env, home string, fallback ...string) string {
	if v := os.Getenv(env); v != "" && filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// ConfigDir returns $XDG_CONFIG_HOME/<app>.
func (p *Paths) ConfigDir() string {
	return filepath.Join(p.configHome, p.AppName)
}

// ConfigFile returns the config file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir(), DefaultConfigFile)
}

// CacheDir returns $XDG_CACHE_HOME/<app>.
func (p *Paths) CacheDir() string {
	return filepath.Join(p.cacheHome, p.AppName)
}

// DataDir returns $XDG_DATA_HOME/<app>.
func (p *Paths) DataDir() string {
	return filepath.Join(p.dataHome, p.AppName)
}

// ModelDir holds downloaded model weights.
func (p *Paths) ModelDir() string {
	return filepath.Join(p.DataDir(), "models")
}

// ModelCacheDir holds the fetched-model key/value cache.
func (p *Paths) ModelCacheDir() string {
	return filepath.Join(p.CacheDir(), "models")
}

// SessionsDir holds the recorded-session store.
func (p *Paths) SessionsDir() string {
	return filepath.Join(p.DataDir(), "sessions")
}

// Ensure creates dir and its parents.
func Ensure(dir string) (string, error) {
	return dir, os.MkdirAll(dir, 0o755)
}
