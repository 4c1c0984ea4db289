// Package config loads the dotfile-style settings this server starts from.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Settings is the immutable, process-wide configuration loaded at startup.
// Once constructed it is never mutated, so it may be shared freely across
// goroutines.
type Settings struct {
	HcmcHost   string
	AlchemyAPI string

	// Test-only fields, present in the dotfile for integration tests but
	// unused by the running server.
	TestSigninURL string
	TestEmail     string
	TestPass      string
}

// Load reads the dotfile at path and maps its keys onto Settings. A missing
// or unreadable file, or a missing required key, is a fatal configuration
// error; the caller should refuse to start.
func Load(path string) (*Settings, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	settings := &Settings{
		HcmcHost:      values["hcmc_host"],
		AlchemyAPI:    values["alchemy_api"],
		TestSigninURL: values["test_signin_url"],
		TestEmail:     values["test_email"],
		TestPass:      values["test_pass"],
	}

	if settings.HcmcHost == "" {
		return nil, fmt.Errorf("config: %s is missing required key hcmc_host", path)
	}
	if settings.AlchemyAPI == "" {
		return nil, fmt.Errorf("config: %s is missing required key alchemy_api", path)
	}

	return settings, nil
}

// LoadFromEnv loads settings purely from the process environment, for
// deployments that inject configuration via the environment rather than a
// checked-in dotfile (e.g. containerized runs).
func LoadFromEnv() (*Settings, error) {
	settings := &Settings{
		HcmcHost:      os.Getenv("HCMC_HOST"),
		AlchemyAPI:    os.Getenv("ALCHEMY_API"),
		TestSigninURL: os.Getenv("TEST_SIGNIN_URL"),
		TestEmail:     os.Getenv("TEST_EMAIL"),
		TestPass:      os.Getenv("TEST_PASS"),
	}

	if settings.HcmcHost == "" {
		return nil, fmt.Errorf("config: HCMC_HOST is required")
	}
	if settings.AlchemyAPI == "" {
		return nil, fmt.Errorf("config: ALCHEMY_API is required")
	}

	return settings, nil
}
