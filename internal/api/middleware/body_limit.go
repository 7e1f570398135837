package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes limits ordinary JSON requests (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultBatchMaxBodyBytes limits batch and upload requests (12MB: one
	// 10MiB schema file plus multipart framing).
	DefaultBatchMaxBodyBytes = 12 * 1024 * 1024
)

// batchPaths are the request paths that may legitimately carry large bodies.
func isBatchPath(path string) bool {
	trimmed := strings.TrimSuffix(path, "/")
	return strings.HasSuffix(trimmed, "/dry-run") ||
		strings.HasSuffix(trimmed, "/apply") ||
		strings.HasSuffix(trimmed, "/upload")
}

// MaxBodySize limits request body size: batchMax for dry-run/apply/upload
// POSTs, standardMax otherwise. GET/HEAD/DELETE are not limited.
func MaxBodySize(standardMax, batchMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			max := standardMax
			if (r.Method == http.MethodPost || r.Method == http.MethodPut) && isBatchPath(r.URL.Path) {
				max = batchMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
