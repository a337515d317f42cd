// errors.go - error kinds and response helpers.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrInvalidRequest marks malformed input. Rejected before any cache or
// analytics interaction and never retried.
var ErrInvalidRequest = errors.New("invalid request")

// UpstreamError wraps a failed forward after retries were exhausted.
type UpstreamError struct {
	StatusCode int // last upstream status, 0 for transport errors
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream failed after %d attempts: status %d", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("upstream failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, msg string, errType string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": errType},
	})
}

// isLoopback reports whether the remote address is a loopback interface.
// Operational endpoints (stats, stream, shutdown, cache admin) are
// restricted to the local machine.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
