package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// NamingStrategy composes resource names from required input fields and
// validates the result against a regex.
type NamingStrategy struct {
	Name      string   `json:"name"`
	Fields    []string `json:"fields"` // subset of: topic, namespace, record, env, team, key_or_value
	Separator string   `json:"separator"`
	Pattern   string   `json:"pattern"`

	re *regexp.Regexp
}

// namingFields is the closed set of strategy input fields.
var namingFields = map[string]struct{}{
	"topic": {}, "namespace": {}, "record": {}, "env": {}, "team": {}, "key_or_value": {},
}

// NamingConfig parameterizes the naming rule family.
type NamingConfig struct {
	Strategies        []NamingStrategy `json:"strategies"`
	ForbiddenPrefixes []string         `json:"forbidden_prefixes"`
	ReservedNames     []string         `json:"reserved_names"`
	ReservedPrefixes  []string         `json:"reserved_prefixes"`
}

// defaultNamingConfig backs the family when no NAMING policy row is ACTIVE.
func defaultNamingConfig() NamingConfig {
	return NamingConfig{
		Strategies: []NamingStrategy{{
			Name:      "env-domain-event",
			Fields:    []string{"env", "namespace", "record"},
			Separator: ".",
			Pattern:   `^[a-z][a-z0-9]*(\.[a-z0-9_-]+)+$`,
		}},
		ForbiddenPrefixes: []string{"tmp.", "test."},
		ReservedNames:     []string{"__consumer_offsets", "__transaction_state", "_schemas"},
		ReservedPrefixes:  []string{"connect-"},
	}
}

// parseNamingConfig decodes and validates policy content.
func parseNamingConfig(content json.RawMessage) (NamingConfig, error) {
	var cfg NamingConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return NamingConfig{}, fmt.Errorf("naming policy content is not valid JSON: %w", err)
	}
	if len(cfg.Strategies) == 0 {
		return NamingConfig{}, fmt.Errorf("naming policy missing required fields: strategies")
	}
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		if s.Pattern == "" {
			return NamingConfig{}, fmt.Errorf("naming strategy %q missing required fields: pattern", s.Name)
		}
		for _, f := range s.Fields {
			if _, ok := namingFields[f]; !ok {
				return NamingConfig{}, fmt.Errorf("naming strategy %q has unknown field %q", s.Name, f)
			}
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return NamingConfig{}, fmt.Errorf("naming strategy %q has invalid pattern: %w", s.Name, err)
		}
		s.re = re
	}
	// Reserved defaults are always enforced even when the policy narrows them.
	def := defaultNamingConfig()
	cfg.ReservedNames = mergeUnique(cfg.ReservedNames, def.ReservedNames)
	cfg.ReservedPrefixes = mergeUnique(cfg.ReservedPrefixes, def.ReservedPrefixes)
	if len(cfg.ForbiddenPrefixes) == 0 {
		cfg.ForbiddenPrefixes = def.ForbiddenPrefixes
	}
	return cfg, nil
}

func mergeUnique(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

// evaluateNaming checks one resource name against the naming family.
func evaluateNaming(cfg NamingConfig, name string, env models.Environment) []models.Violation {
	var out []models.Violation

	if len(name) > models.MaxResourceNameLen {
		out = append(out, models.Violation{
			Resource: name, RuleID: "naming.length", Severity: models.SeverityError, Field: "name",
			Message: fmt.Sprintf("name exceeds %d characters", models.MaxResourceNameLen),
		})
	}
	for _, reserved := range cfg.ReservedNames {
		if name == reserved {
			out = append(out, models.Violation{
				Resource: name, RuleID: "naming.reserved", Severity: models.SeverityCritical, Field: "name",
				Message: fmt.Sprintf("%q is a reserved name", name),
			})
		}
	}
	for _, prefix := range cfg.ReservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			out = append(out, models.Violation{
				Resource: name, RuleID: "naming.reserved", Severity: models.SeverityCritical, Field: "name",
				Message: fmt.Sprintf("prefix %q is reserved", prefix),
			})
		}
	}
	if env == models.EnvProd {
		for _, prefix := range cfg.ForbiddenPrefixes {
			if strings.HasPrefix(name, prefix) {
				out = append(out, models.Violation{
					Resource: name, RuleID: "naming.forbidden_prefix", Severity: models.SeverityError, Field: "name",
					Message: fmt.Sprintf("prefix %q is not allowed in PROD", prefix),
				})
			}
		}
	}
	matched := false
	for i := range cfg.Strategies {
		re := cfg.Strategies[i].re
		if re == nil {
			re = regexp.MustCompile(cfg.Strategies[i].Pattern)
		}
		if re.MatchString(name) {
			matched = true
			break
		}
	}
	if !matched {
		out = append(out, models.Violation{
			Resource: name, RuleID: "naming.pattern", Severity: models.SeverityError, Field: "name",
			Message: fmt.Sprintf("name %q matches no naming strategy", name),
		})
	}
	return out
}
