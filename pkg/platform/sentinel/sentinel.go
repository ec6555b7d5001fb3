package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and callers translate them into domain errors or form messages.
//
//   - ErrNotFound: record does not exist
//   - ErrAlreadyUsed: a unique value (email, username) is taken
//   - ErrUnavailable: backing service cannot be reached
//
// Validation failures are not sentinels; see pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
