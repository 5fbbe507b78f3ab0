package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/keymint/keymint/internal/models"
	"gopkg.in/yaml.v3"
)

// policyFile is the YAML shape of the policy flags file.
type policyFile struct {
	MinimumVersion  string   `yaml:"minimum_version"`
	FeaturesEnabled []string `yaml:"features_enabled"`
	MaintenanceMode bool     `yaml:"maintenance_mode"`
}

// LoadPolicyFlags loads the server policy flags returned on successful
// credential verification. When path is empty, flags come from the
// POLICY_MINIMUM_VERSION, POLICY_FEATURES (comma-separated), and
// POLICY_MAINTENANCE_MODE environment variables.
func LoadPolicyFlags(path string) (models.PolicyFlags, error) {
	if path == "" {
		return models.PolicyFlags{
			MinimumVersion:  getEnvStr("POLICY_MINIMUM_VERSION", "1.0.0"),
			FeaturesEnabled: splitFeatures(os.Getenv("POLICY_FEATURES")),
			MaintenanceMode: getEnvBool("POLICY_MAINTENANCE_MODE", false),
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.PolicyFlags{}, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return models.PolicyFlags{}, fmt.Errorf("parse policy file: %w", err)
	}

	flags := models.PolicyFlags{
		MinimumVersion:  pf.MinimumVersion,
		FeaturesEnabled: pf.FeaturesEnabled,
		MaintenanceMode: pf.MaintenanceMode,
	}
	if flags.MinimumVersion == "" {
		flags.MinimumVersion = "1.0.0"
	}
	if flags.FeaturesEnabled == nil {
		flags.FeaturesEnabled = []string{}
	}
	return flags, nil
}

func splitFeatures(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	features := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := strings.TrimSpace(p); f != "" {
			features = append(features, f)
		}
	}
	return features
}
