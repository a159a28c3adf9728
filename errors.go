package tgcaller

import "github.com/TgCaller/TgCaller/internal/errs"

// Kind classifies an Error so callers can branch on failure category
// without parsing messages.
type Kind = errs.Kind

const (
	KindInternal      = errs.KindInternal
	KindConfig        = errs.KindConfig
	KindNotRunning    = errs.KindNotRunning
	KindAlreadyActive = errs.KindAlreadyActive
	KindNotInCall     = errs.KindNotInCall
	KindAlreadyInCall = errs.KindAlreadyInCall
	KindMedia         = errs.KindMedia
	KindTransport     = errs.KindTransport
	KindTimeout       = errs.KindTimeout
	KindCancelled     = errs.KindCancelled
)

// Error is the engine's typed error. It always carries a Kind so callers
// can use errors.As to branch on category, and optionally wraps a cause.
type Error = errs.Error

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
func IsKind(err error, kind Kind) bool { return errs.IsKind(err, kind) }
