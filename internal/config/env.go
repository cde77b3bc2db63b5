// Package config loads process configuration: provider credentials from the
// environment (optionally seeded from a .env file) and generation profiles,
// loop limits and server settings from a YAML file.
package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFileName is the dotenv file looked up by LoadEnv.
const EnvFileName = ".env"

// parentLevels bounds how far above the executable the search climbs, so a
// binary in bin/ still finds files at the project root.
const parentLevels = 3

// searchDirs returns the directories probed for configuration files: the
// executable's directory and up to parentLevels parents, then the working
// directory for `go run ./cmd/reasonloop`. Duplicates are removed.
func searchDirs() []string {
	var dirs []string
	seen := map[string]bool{}
	add := func(d string) {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		dir := filepath.Dir(exe)
		for i := 0; i <= parentLevels; i++ {
			add(dir)
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		add(cwd)
	}
	return dirs
}

// findIn returns the first regular file called name in dirs.
func findIn(dirs []string, name string) (string, bool) {
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// FindFile locates a configuration file such as .env or reasonloop.yaml next
// to the executable, above it, or in the working directory.
func FindFile(name string) (string, bool) {
	return findIn(searchDirs(), name)
}

// LoadEnv seeds the process environment from a .env file and returns the
// path it loaded, or "" when none was. Explicit paths are tried as given;
// otherwise the file is located with FindFile. Variables already set in the
// environment win over the file.
func LoadEnv(paths ...string) string {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			log.Printf("[Config] No .env file at %v, using system environment variables", paths)
			return ""
		}
		return paths[0]
	}

	path, ok := FindFile(EnvFileName)
	if !ok {
		log.Printf("[Config] No %s found (searched: %v), using system environment variables", EnvFileName, searchDirs())
		return ""
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("[Config] Failed to load %s: %v", path, err)
		return ""
	}
	log.Printf("[Config] Loaded %s", path)
	return path
}
