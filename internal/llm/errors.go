package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectvak/contract-pipeline/internal/common"
)

var (
	quotaSignatures = []string{"quota", "resource_exhausted", "resource exhausted"}
	authSignatures  = []string{"api key", "api_key", "authentication", "permission denied", "permission_denied"}
	rateSignatures  = []string{"rate limit", "rate_limit", "too many requests"}

	quotaCodes = []string{"429"}
	authCodes  = []string{"401", "403"}
)

// HTTPStatusError is implemented by errors that carry a provider status code.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// Kind is the coarse class of an LLM error.
type Kind int

const (
	KindOther Kind = iota
	KindQuota
	KindAuth
	KindRateLimit
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// KindOf inspects err, first by sentinel and then by message text.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, common.ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, common.ErrAPIKey):
		return KindAuth
	case errors.Is(err, common.ErrRateLimited):
		return KindRateLimit
	}
	var se HTTPStatusError
	if errors.As(err, &se) {
		switch se.HTTPStatus() {
		case 429:
			return KindQuota
		case 401, 403:
			return KindAuth
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, quotaSignatures), containsCode(msg, quotaCodes):
		return KindQuota
	case containsAny(msg, authSignatures), containsCode(msg, authCodes):
		return KindAuth
	case containsAny(msg, rateSignatures):
		return KindRateLimit
	}
	return KindOther
}

// Classify wraps err with the matching common sentinel so callers can use
// errors.Is. Errors that match nothing are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch KindOf(err) {
	case KindQuota:
		sentinel = common.ErrQuotaExceeded
	case KindAuth:
		sentinel = common.ErrAPIKey
	case KindRateLimit:
		sentinel = common.ErrRateLimited
	default:
		return err
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsQuota reports a quota or HTTP 429 signature.
func IsQuota(err error) bool { return KindOf(err) == KindQuota }

// IsAuth reports an API key or permission signature.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// containsCode matches status codes as whole numbers only, so digit runs
// inside ids, ports or byte counts do not count.
func containsCode(s string, codes []string) bool {
	for _, c := range codes {
		for i := 0; ; {
			j := strings.Index(s[i:], c)
			if j < 0 {
				break
			}
			start, end := i+j, i+j+len(c)
			if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
				return true
			}
			i = start + 1
		}
	}
	return false
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
