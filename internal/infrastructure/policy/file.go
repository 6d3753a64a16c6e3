// Package policy loads the approval threshold table and role bindings from
// YAML and answers role questions for approval routing.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AnyActor binds roles to every actor of the binding's scope
const AnyActor = "*"

// RoleBinding grants roles to an actor. Empty tenant or company ids match any.
type RoleBinding struct {
	TenantID  string   `yaml:"tenant_id"`
	CompanyID string   `yaml:"company_id"`
	Actor     string   `yaml:"actor"`
	Roles     []string `yaml:"roles"`
}

// File is the parsed policy file
type File struct {
	Rules    []ledger.ThresholdRule `yaml:"rules"`
	Bindings []RoleBinding          `yaml:"role_bindings"`
}

// Table returns the threshold table
func (f *File) Table() ledger.PolicyTable {
	return ledger.PolicyTable{Rules: f.Rules}
}

// Load reads and validates a policy file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates policy YAML. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if err := f.Table().Validate(); err != nil {
		return err
	}
	for i, b := range f.Bindings {
		if b.Actor == "" {
			return fmt.Errorf("role_bindings[%d]: actor is required", i)
		}
		if b.Actor != AnyActor {
			if _, err := uuid.Parse(b.Actor); err != nil {
				return fmt.Errorf("role_bindings[%d]: invalid actor %q", i, b.Actor)
			}
		}
		if b.TenantID != "" {
			if _, err := uuid.Parse(b.TenantID); err != nil {
				return fmt.Errorf("role_bindings[%d]: invalid tenant_id %q", i, b.TenantID)
			}
		}
		if b.CompanyID != "" {
			if _, err := uuid.Parse(b.CompanyID); err != nil {
				return fmt.Errorf("role_bindings[%d]: invalid company_id %q", i, b.CompanyID)
			}
		}
		if len(b.Roles) == 0 {
			return fmt.Errorf("role_bindings[%d]: at least one role is required", i)
		}
	}
	return nil
}

// Development returns the policy used when no file is configured: every
// entry needs one controller approval and every actor holds the controller
// role. Segregation of duties still applies.
func Development() *File {
	return &File{
		Rules: []ledger.ThresholdRule{{
			Name:  "default",
			Steps: []ledger.ApprovalStep{{Level: 1, Roles: []string{"controller"}}},
		}},
		Bindings: []RoleBinding{{Actor: AnyActor, Roles: []string{"controller"}}},
	}
}
