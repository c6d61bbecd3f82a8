package models

import (
	"fmt"
	"strings"

	"github.com/triad-sh/triad/internal/coord"
)

// delegateError classifies a completion failure and wraps it in the
// delegate error so callers can match with errors.Is. Rate limits and
// connection failures are worth retrying on another credential;
// authentication failures usually mean the credential itself is bad.
func delegateError(err error) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden"):
		return fmt.Errorf("authentication failed: %w: %v", coord.ErrDelegate, err)
	case containsAny(errStr, "429", "rate limit", "quota", "too many requests"):
		return fmt.Errorf("rate limited: %w: %v", coord.ErrDelegate, err)
	case containsAny(errStr, "context length", "too many tokens", "token limit"):
		return fmt.Errorf("prompt too long: %w: %v", coord.ErrDelegate, err)
	case containsAny(errStr, "connection", "eof", "timeout", "dial", "refused"):
		return fmt.Errorf("connection error: %w: %v", coord.ErrDelegate, err)
	default:
		return fmt.Errorf("%w: %v", coord.ErrDelegate, err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
