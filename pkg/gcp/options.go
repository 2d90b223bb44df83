// Package gcp turns the GCP config section into client options shared by the
// Pub/Sub relay and proof storage.
package gcp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
)

// ClientOptions selects inline credentials, then a key file, then
// application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	default:
		return nil
	}
}

// ServiceAccount is the signing identity inside a service account key.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// LoadServiceAccount returns the configured service account key, or nil when
// the process runs on default credentials or a non-service-account key.
func LoadServiceAccount(cfg config.GCPConfig) (*ServiceAccount, error) {
	raw := strings.TrimSpace(cfg.CredentialsJSON)
	if raw == "" && strings.TrimSpace(cfg.ApplicationCredentials) != "" {
		b, err := os.ReadFile(cfg.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.ApplicationCredentials, err)
		}
		raw = string(b)
	}
	if raw == "" {
		return nil, nil
	}

	var sa ServiceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, fmt.Errorf("parsing gcp credentials: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, nil
	}
	return &sa, nil
}
