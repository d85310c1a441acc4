package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and .env from dir, in that order. Variables
// already set in the environment are never overwritten, so the process
// environment wins over .env.local, which wins over .env. It returns the
// files that were loaded.
func LoadDotEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		path := name
		if dir != "" {
			path = dir + string(os.PathSeparator) + name
		}
		if _, err := os.Stat(path); err == nil {
			loaded = append(loaded, path)
		}
	}

	if len(loaded) == 0 {
		return nil, nil
	}

	return loaded, godotenv.Load(loaded...)
}
