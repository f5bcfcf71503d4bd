// Package security keeps secrets out of error output. The process handles
// exactly four kinds of secret material — database DSN credentials
// (pkg/config), the JWT signing key and bearer tokens (internal/api),
// session secrets, and bcrypt password hashes (user payloads) — and any of
// them can ride along on a wrapped error chain: a failed Push echoing a
// payload, a GORM error echoing the DSN, a token-verification failure
// echoing the token. Everything here redacts those shapes before an error
// is logged or crosses the process boundary.
package security

import (
	"fmt"
	"regexp"

	"github.com/haloiam/core/pkg/apperrors"
	"github.com/haloiam/core/pkg/logging"
)

// ErrorHandler is the sink for infrastructure failures (projection ticks,
// store operations): it logs the sanitized error under its apperrors kind
// and hands back a caller-safe error of the same kind, so the taxonomy the
// command and query layers speak survives sanitization.
type ErrorHandler struct {
	logger    logging.Logger
	sanitizer *Sanitizer
}

// NewErrorHandler builds an ErrorHandler backed by the given logger.
func NewErrorHandler(logger logging.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger, sanitizer: NewSanitizer()}
}

// HandleSystemError logs err redacted and keyed by operation, then returns
// an error carrying the same apperrors.Kind but none of the original cause
// chain. An error with no kind is treated as internal — an invariant broke
// somewhere, and the details belong in the log, not the response.
func (h *ErrorHandler) HandleSystemError(err error, operation string) error {
	if err == nil {
		return nil
	}
	kind, ok := apperrors.As(err)
	if !ok {
		kind = apperrors.KindInternal
	}
	h.logger.Error("system operation failed",
		"operation", operation,
		"kind", string(kind),
		"error", h.sanitizer.Redact(err.Error()))

	switch kind {
	case apperrors.KindUnavailable:
		return apperrors.Unavailable("SECURITY-Sys01", operation+" is temporarily unavailable", nil)
	case apperrors.KindInternal:
		return apperrors.Internal("SECURITY-Sys02", operation+" failed", nil)
	default:
		// The remaining kinds (not_found, already_exists, ...) are
		// caller-caused and safe to surface as-is — only the cause chain,
		// which may quote payloads or DSNs, is dropped.
		return &apperrors.Error{Kind: kind, Code: "SECURITY-Sys03", Message: operation + " failed"}
	}
}

// redaction pairs a pattern with its replacement; replacements keep enough
// surrounding shape (the key name, the URL user) for the log line to stay
// diagnosable.
type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// Sanitizer redacts the secret shapes this system produces from free-form
// message text.
type Sanitizer struct {
	rules []redaction
}

// NewSanitizer builds a Sanitizer covering the process's own secret
// material: key=value config secrets (dsn, jwt_signing_key,
// session_secret, password), URL userinfo credentials as they appear in a
// postgres DSN, bcrypt hashes, and JWT-shaped bearer tokens.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: []redaction{
		// The key alternatives tolerate a prefix (jwt_signing_key,
		// HALOIAM_SESSION_SECRET) — a word boundary can't sit after an
		// underscore, so a plain \b would miss the compound names
		// pkg/config actually uses.
		{regexp.MustCompile(`(?i)\b([a-z0-9_-]*(?:password|passwd|secret|signing[_-]?key|api[_-]?key|dsn))\s*[=:]\s*[^\s'"]+`), "${1}=[REDACTED]"},
		{regexp.MustCompile(`://([^/:@\s]+):[^@\s]+@`), "://${1}:[REDACTED]@"},
		{regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`), "[REDACTED-HASH]"},
		{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[REDACTED-TOKEN]"},
	}}
}

// Redact replaces every secret-shaped substring in msg.
func (s *Sanitizer) Redact(msg string) string {
	for _, r := range s.rules {
		msg = r.pattern.ReplaceAllString(msg, r.replace)
	}
	return msg
}

// AddRule registers an additional pattern/replacement pair, for deployments
// with secret shapes of their own (e.g. cloud API key prefixes).
func (s *Sanitizer) AddRule(pattern, replace string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("security: invalid redaction pattern: %w", err)
	}
	s.rules = append(s.rules, redaction{pattern: compiled, replace: replace})
	return nil
}

// Recovery converts a panic inside a projector or handler into an ordinary
// internal error, so one poisoned payload cannot take the process down.
type Recovery struct {
	logger logging.Logger
}

// NewRecovery builds a Recovery backed by the given logger.
func NewRecovery(logger logging.Logger) *Recovery {
	return &Recovery{logger: logger}
}

// SafeExecute runs fn, turning a panic into a logged KindInternal error
// keyed by operation. The panic value itself goes only to the log.
func (r *Recovery) SafeExecute(operation string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic recovered", "operation", operation, "panic", fmt.Sprintf("%v", rec))
			err = apperrors.Internal("SECURITY-Rec01", operation+" panicked", nil)
		}
	}()
	return fn()
}
