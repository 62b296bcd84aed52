package errs

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
)

// FailureKind is how the sync orchestrator treats a failed run.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureRateLimit FailureKind = "RATE_LIMIT"
	FailureTransient FailureKind = "TRANSIENT"
	FailureFatal     FailureKind = "FATAL"
)

// Matcher maps lowercase substrings of an error message to a kind.
type Matcher struct {
	Kind       FailureKind
	Signatures []string
}

var defaultMatchers = []Matcher{
	{Kind: FailureRateLimit, Signatures: []string{"rate limit", "ratelimit", "too many requests", "429"}},
	{Kind: FailureTransient, Signatures: []string{
		"timeout", "timed out", "deadline exceeded", "connection reset", "connection refused",
		"temporarily unavailable", "service unavailable", "bad gateway", "502", "503", "504",
	}},
}

// FailureClassifier holds per-provider matcher tables consulted before the
// defaults.
type FailureClassifier struct {
	mu        sync.RWMutex
	providers map[string][]Matcher
}

func NewFailureClassifier() *FailureClassifier {
	c := &FailureClassifier{providers: make(map[string][]Matcher)}
	c.Register("plaid",
		Matcher{Kind: FailureRateLimit, Signatures: []string{"rate_limit_exceeded", "transactions_sync_limit"}},
		Matcher{Kind: FailureFatal, Signatures: []string{"item_login_required", "invalid_access_token", "item_not_found", "access_not_granted"}},
		Matcher{Kind: FailureTransient, Signatures: []string{"institution_down", "institution_not_responding", "internal_server_error", "product_not_ready"}},
	)
	c.Register("enablebanking",
		Matcher{Kind: FailureRateLimit, Signatures: []string{"aspsp_rate_limit_exceeded"}},
		Matcher{Kind: FailureFatal, Signatures: []string{"expired_session", "session_expired"}},
	)
	return c
}

// Register appends matchers for a provider id.
func (c *FailureClassifier) Register(providerID string, matchers ...Matcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[providerID] = append(c.providers[providerID], matchers...)
}

// Classify decides how a sync failure for providerID is handled.
func (c *FailureClassifier) Classify(providerID string, err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return FailureFatal
	}
	if kind := c.matchProvider(providerID, err.Error()); kind != FailureNone {
		return kind
	}

	var extErr *ExternalServiceError
	if errors.As(err, &extErr) {
		switch {
		case extErr.StatusCode == http.StatusTooManyRequests:
			return FailureRateLimit
		case extErr.Transient, extErr.StatusCode >= http.StatusInternalServerError:
			return FailureTransient
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}

	if kind := matchAll(defaultMatchers, err.Error()); kind != FailureNone {
		return kind
	}
	return FailureFatal
}

// ClassifyText applies the matcher tables to a stored error message.
// Unlike Classify, unmatched text yields FailureNone.
func (c *FailureClassifier) ClassifyText(providerID, text string) FailureKind {
	if strings.TrimSpace(text) == "" {
		return FailureNone
	}
	if kind := c.matchProvider(providerID, text); kind != FailureNone {
		return kind
	}
	return matchAll(defaultMatchers, text)
}

// IsRateLimitText reports whether text carries a rate-limit signature for providerID.
func (c *FailureClassifier) IsRateLimitText(providerID, text string) bool {
	return c.ClassifyText(providerID, text) == FailureRateLimit
}

func (c *FailureClassifier) matchProvider(providerID, text string) FailureKind {
	c.mu.RLock()
	matchers := c.providers[providerID]
	c.mu.RUnlock()
	return matchAll(matchers, text)
}

func matchAll(matchers []Matcher, text string) FailureKind {
	lowered := strings.ToLower(text)
	for _, m := range matchers {
		for _, sig := range m.Signatures {
			if strings.Contains(lowered, sig) {
				return m.Kind
			}
		}
	}
	return FailureNone
}
