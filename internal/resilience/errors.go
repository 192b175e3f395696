package resilience

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrorClass is the failure taxonomy for intelligence requests.
type ErrorClass string

const (
	ClassTransient  ErrorClass = "transient"
	ClassQuota      ErrorClass = "quota"
	ClassCredential ErrorClass = "credential"
	ClassMalformed  ErrorClass = "malformed"
)

var (
	// ErrTransientUpstream marks a generic upstream failure that survived retry.
	ErrTransientUpstream = eris.New("transient upstream error")
	// ErrQuotaExhausted marks a rate-limit or quota rejection. Never retried.
	ErrQuotaExhausted = eris.New("quota exhausted")
	// ErrCredentialInvalid marks a missing or invalid credential. Never retried.
	ErrCredentialInvalid = eris.New("credential invalid")
	// ErrMalformedPayload marks a response with no parseable JSON object.
	ErrMalformedPayload = eris.New("malformed intelligence payload")
)

// Sentinel returns the sentinel error for the class.
func (c ErrorClass) Sentinel() error {
	switch c {
	case ClassQuota:
		return ErrQuotaExhausted
	case ClassCredential:
		return ErrCredentialInvalid
	case ClassMalformed:
		return ErrMalformedPayload
	default:
		return ErrTransientUpstream
	}
}

// UpstreamError carries a classified failure together with its cause and
// the deepest human-readable upstream message. errors.Is matches both the
// class sentinel and the cause.
type UpstreamError struct {
	Class   ErrorClass
	Message string
	Err     error
}

// NewUpstreamError classifies err and wraps it.
func NewUpstreamError(err error) *UpstreamError {
	return &UpstreamError{
		Class:   Classify(err),
		Message: ErrorMessage(err),
		Err:     err,
	}
}

func (e *UpstreamError) Error() string {
	return e.Class.Sentinel().Error() + ": " + e.Message
}

func (e *UpstreamError) Unwrap() []error {
	return []error{e.Class.Sentinel(), e.Err}
}

// UpstreamMessenger is implemented by client errors that hold the raw
// upstream response body.
type UpstreamMessenger interface {
	UpstreamMessage() string
}

var (
	// statusTooManyRequests matches 429 as a standalone number, not as part
	// of a port, address or longer number.
	statusTooManyRequests = regexp.MustCompile(`(?:^|[^\d.])429(?:[^\d.]|$)`)
	credentialMarkers     = []string{"entity was not found", "entity not found", "api_key_invalid"}
)

// IsQuotaMessage reports whether msg carries a rate-limit or quota marker.
func IsQuotaMessage(msg string) bool {
	if statusTooManyRequests.MatchString(msg) || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "quota")
}

// IsCredentialMessage reports whether msg indicates an invalid or unknown
// credential.
func IsCredentialMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range credentialMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Classify maps err onto the failure taxonomy. Errors already classified
// keep their class; otherwise the full error text and the extracted upstream
// message are checked for quota and credential markers.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Class
	}
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return ClassQuota
	case errors.Is(err, ErrCredentialInvalid):
		return ClassCredential
	case errors.Is(err, ErrMalformedPayload):
		return ClassMalformed
	}

	text := err.Error() + "\n" + ErrorMessage(err)
	switch {
	case IsQuotaMessage(text):
		return ClassQuota
	case IsCredentialMessage(text):
		return ClassCredential
	default:
		return ClassTransient
	}
}

// Retryable reports whether err is worth another attempt. Quota and
// credential failures are not.
func Retryable(err error) bool {
	switch Classify(err) {
	case ClassQuota, ClassCredential:
		return false
	default:
		return err != nil
	}
}

// maxMessageDepth bounds recursion through nested stringified envelopes.
const maxMessageDepth = 4

// ErrorMessage surfaces the deepest human-readable message in err. It
// understands plain errors, raw {"error":{"message":...}} envelopes, and
// message fields that themselves hold stringified JSON of either shape.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	var um UpstreamMessenger
	if errors.As(err, &um) {
		if msg := extractMessage(um.UpstreamMessage(), 0); msg != "" {
			return msg
		}
	}
	return extractMessage(eris.Cause(err).Error(), 0)
}

func extractMessage(s string, depth int) string {
	s = strings.TrimSpace(s)
	if depth >= maxMessageDepth {
		return s
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}

	var env map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &env); err != nil {
		return s
	}

	switch inner := env["error"].(type) {
	case map[string]any:
		if msg, ok := inner["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return extractMessage(msg, depth+1)
		}
	case string:
		if strings.TrimSpace(inner) != "" {
			return extractMessage(inner, depth+1)
		}
	}
	if msg, ok := env["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return extractMessage(msg, depth+1)
	}
	return s
}
