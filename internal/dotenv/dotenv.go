// Package dotenv loads a local .env file before the keeper reads its
// environment overrides (KEEPER_PRIVATE_KEY and friends). A missing
// file is not an error; deployments set real environment variables.
package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads .env from the working directory, if present.
func Load() error {
	return LoadFrom(".env")
}

// LoadFrom reads the named env file, if present. Existing environment
// variables win over file values.
func LoadFrom(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
