package models

import "strings"

// Environment classifies where a resource lives. Derived from the first
// dot-segment of a resource name when not explicit.
type Environment string

const (
	EnvDev     Environment = "DEV"
	EnvStg     Environment = "STG"
	EnvProd    Environment = "PROD"
	EnvUnknown Environment = "UNKNOWN"
)

// DeriveEnvironment maps the first dot-segment of a topic or subject name
// to an environment. Names without a known prefix (e.g. RecordName-strategy
// subjects) resolve to EnvUnknown.
func DeriveEnvironment(name string) Environment {
	seg := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		seg = name[:idx]
	}
	switch strings.ToLower(seg) {
	case "dev", "develop", "development":
		return EnvDev
	case "stg", "staging":
		return EnvStg
	case "prod", "prd", "production":
		return EnvProd
	default:
		return EnvUnknown
	}
}

// ParseEnvironment parses an explicit environment string ("dev", "PROD", ...).
func ParseEnvironment(s string) Environment {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEV":
		return EnvDev
	case "STG", "STAGING":
		return EnvStg
	case "PROD", "PRD":
		return EnvProd
	default:
		return EnvUnknown
	}
}

// PolicyTarget is the lowercase form used by policy rows ("dev", "stg",
// "prod"); EnvUnknown maps to "dev" leniency for resolution purposes.
func (e Environment) PolicyTarget() string {
	switch e {
	case EnvStg:
		return "stg"
	case EnvProd:
		return "prod"
	default:
		return "dev"
	}
}
