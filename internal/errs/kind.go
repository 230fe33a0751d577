// Package errs provides structured error handling for codesearch.
//
// Every error surfaced across package boundaries carries a Kind drawn from
// a closed set, so callers can branch on failure category without parsing
// strings or depending on sentinel values scattered across packages.
package errs

// Kind classifies an error into a closed set of categories that callers
// can safely switch on.
type Kind int

const (
	// KindInvalidInput indicates malformed caller input (bad query, bad path).
	KindInvalidInput Kind = iota
	// KindNotFound indicates a requested resource does not exist.
	KindNotFound
	// KindPermissionDenied indicates the caller lacks access to a resource.
	KindPermissionDenied
	// KindIndexCorrupt indicates on-disk index state failed validation.
	KindIndexCorrupt
	// KindLockContention indicates a write lock could not be acquired.
	KindLockContention
	// KindResourceExhausted indicates a bound (memory, disk, cache) was hit.
	KindResourceExhausted
	// KindTimeout indicates an operation exceeded its deadline.
	KindTimeout
	// KindCancelled indicates the caller's context was cancelled.
	KindCancelled
	// KindInternal indicates an unexpected internal failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindIndexCorrupt:
		return "index_corrupt"
	case KindLockContention:
		return "lock_contention"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Retryable reports whether operations failing with this kind are worth
// retrying without caller intervention.
func (k Kind) Retryable() bool {
	switch k {
	case KindLockContention, KindTimeout, KindResourceExhausted:
		return true
	default:
		return false
	}
}
