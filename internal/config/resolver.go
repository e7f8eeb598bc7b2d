package config

import (
	"os"
	"path/filepath"
)

// FileName is the default configuration file name.
const FileName = "dbarchiver.yaml"

// ResolvePath returns the configuration file to load. An explicit path wins;
// otherwise the first existing file among $XDG_CONFIG_HOME/dbarchiver,
// ~/.config/dbarchiver and the working directory is used. When none exists
// the working-directory candidate is returned so the caller reports a
// useful path.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range candidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return FileName
}

func candidatePaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "dbarchiver", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dbarchiver", FileName))
	}
	return append(paths, FileName)
}

// JobNames returns the job names in configuration order.
func JobNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		names = append(names, j.Schedule.Name)
	}
	return names
}
