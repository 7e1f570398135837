// Package validate provides input validation for API path and body parameters.
package validate

// EndpointIDMaxLen bounds endpoint ids used in paths and stored in the DB.
const EndpointIDMaxLen = 128

// ChangeIDMaxLen bounds change ids; they key plans, results, and audit rows.
const ChangeIDMaxLen = 128

// topicNameMaxLen is Kafka's limit for topic names.
const topicNameMaxLen = 249

// EndpointID validates an endpoint id from a path: alphanumeric, hyphen,
// underscore; 1 to EndpointIDMaxLen characters. UUIDs pass.
func EndpointID(id string) bool {
	if id == "" || len(id) > EndpointIDMaxLen {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// ChangeID validates a change id: printable identifier characters, no path
// separators or whitespace.
func ChangeID(id string) bool {
	if id == "" || len(id) > ChangeIDMaxLen {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == ':' {
			continue
		}
		return false
	}
	return true
}

// TopicName validates a Kafka topic name: the broker's legal character set
// and length limit. "." and ".." are reserved by Kafka.
func TopicName(name string) bool {
	if name == "" || len(name) > topicNameMaxLen {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// Subject validates a Schema Registry subject. Registries accept nearly any
// non-empty string; we reject path separators and whitespace since subjects
// appear in URL paths.
func Subject(subject string) bool {
	if subject == "" || len(subject) > 255 {
		return false
	}
	for _, r := range subject {
		if r == '/' || r == '\\' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}
