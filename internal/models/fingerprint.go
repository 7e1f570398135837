package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// fingerprintLen is the hex-prefix length used for spec and batch fingerprints.
const fingerprintLen = 16

// contentFingerprint hashes an arbitrary value through its canonical JSON
// form and returns a 16-character hex prefix. encoding/json sorts map keys,
// so identical content always produces identical fingerprints.
func contentFingerprint(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		// Marshal of our own value types cannot fail; keep the signature simple.
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// batchFingerprint combines a change id with sorted member fingerprints so
// that spec ordering inside the batch does not affect the result.
func batchFingerprint(changeID string, specPrints []string) string {
	sorted := make([]string, len(specPrints))
	copy(sorted, specPrints)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(changeID + "|" + strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
