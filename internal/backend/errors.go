package backend

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError reports missing or invalid connection configuration. It is
// fatal and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "backend config: " + e.Reason
}

// RemoteError carries a terminal failure reported by the remote side.
type RemoteError struct {
	Message string
	Code    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("statement failed (%s): %s", e.Code, e.Message)
	}
	return "statement failed: " + e.Message
}

// TimeoutError reports a statement that exceeded its wall-clock budget and
// was cancelled best-effort.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("statement timed out after %s", e.Elapsed)
}

// IsAuthError classifies an error as an authentication failure by message
// heuristic. The managed database reports expired OAuth tokens as ordinary
// password failures, so this substring match is what drives the
// reconnect-and-retry protocol.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "password")
}
