// Package redact provides helpers to avoid exposing credentials in API
// responses, audit snapshots, or logs.
package redact

const redactedValue = "***REDACTED***"

// credentialKeys are JSON keys whose values are always masked.
var credentialKeys = map[string]bool{
	"sasl_password": true,
	"sasl_username": true,
	"password":      true,
	"secret_key":    true,
	"access_key":    true,
	"tls_ca_cert":   true,
}

// EndpointFields masks credential values in a decoded endpoint payload
// (in place). Keys are kept so clients know which fields were set.
func EndpointFields(obj map[string]interface{}) {
	if obj == nil {
		return
	}
	for k, v := range obj {
		if credentialKeys[k] {
			if s, ok := v.(string); ok && s != "" {
				obj[k] = redactedValue
			}
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			EndpointFields(nested)
		}
	}
}

// IsCredentialKey reports whether the JSON key holds a credential.
func IsCredentialKey(key string) bool { return credentialKeys[key] }
