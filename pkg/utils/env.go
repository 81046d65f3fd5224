package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadConfig loads .env files from the given directory into the process
// environment. Missing files are not an error; explicit environment variables
// always win over file values.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		logrus.WithError(err).Warnf("[CONFIG] Failed to load %s", envFile)
	}
}
