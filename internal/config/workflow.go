package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fixora/pim/internal/domain"
)

// WorkflowConfig holds the statically configured workflow tables
type WorkflowConfig struct {
	Rules             []domain.TransitionRule            `yaml:"rules"`
	RolePermissions   map[domain.UserRole][]string       `yaml:"rolePermissions"`
	ActionPermissions map[domain.WorkflowAction][]string `yaml:"actionPermissions"`
	Quality           *domain.QualityThresholds          `yaml:"quality"`
}

// DefaultWorkflowConfig returns the built-in tables
func DefaultWorkflowConfig(quality domain.QualityThresholds) *WorkflowConfig {
	return &WorkflowConfig{
		Rules:             domain.DefaultTransitionRules(),
		RolePermissions:   domain.DefaultRolePermissions(),
		ActionPermissions: domain.DefaultActionPermissions(),
		Quality:           &quality,
	}
}

// LoadWorkflowConfig parses a YAML workflow file. Sections missing from the file keep
// their defaults; an empty path returns the defaults unchanged.
func LoadWorkflowConfig(path string, quality domain.QualityThresholds) (*WorkflowConfig, error) {
	defaults := DefaultWorkflowConfig(quality)
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow config: %w", err)
	}
	return ParseWorkflowConfig(data, defaults)
}

// ParseWorkflowConfig decodes YAML over defaults and validates the result
func ParseWorkflowConfig(data []byte, defaults *WorkflowConfig) (*WorkflowConfig, error) {
	var parsed WorkflowConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse workflow config: %w", err)
	}

	out := *defaults
	if len(parsed.Rules) > 0 {
		out.Rules = parsed.Rules
	}
	if len(parsed.RolePermissions) > 0 {
		out.RolePermissions = parsed.RolePermissions
	}
	if len(parsed.ActionPermissions) > 0 {
		out.ActionPermissions = parsed.ActionPermissions
	}
	if parsed.Quality != nil {
		out.Quality = parsed.Quality
	}

	if err := domain.ValidateTransitionRules(out.Rules); err != nil {
		return nil, fmt.Errorf("invalid workflow rules: %w", err)
	}
	for role := range out.RolePermissions {
		if !role.IsValid() {
			return nil, fmt.Errorf("invalid role %q in rolePermissions", role)
		}
	}
	if out.Quality != nil {
		if err := out.Quality.Validate(); err != nil {
			return nil, fmt.Errorf("invalid quality thresholds: %w", err)
		}
	}
	return &out, nil
}
