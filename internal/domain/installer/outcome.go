package installer

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/match"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// Outcome is the terminal state of one install attempt
type Outcome int

const (
	Inserted Outcome = iota
	UpdateApplied
	Rejected
	DuplicateNoOp
	FetchError
	MalformedMetadata
	ResourceFetchError
	StaleVersion
)

var outcomeNames = [...]string{
	Inserted:           "inserted",
	UpdateApplied:      "update_applied",
	Rejected:           "rejected",
	DuplicateNoOp:      "duplicate_noop",
	FetchError:         "fetch_error",
	MalformedMetadata:  "malformed_metadata",
	ResourceFetchError: "resource_fetch_error",
	StaleVersion:       "stale_version",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Committed reports whether the outcome changed the store
func (o Outcome) Committed() bool {
	return o == Inserted || o == UpdateApplied
}

// MarshalText renders the outcome by name
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

var (
	ErrFetch         = errors.New("fetch failed")
	ErrResourceFetch = errors.New("required resource fetch failed")
	ErrStaleVersion  = errors.New("installed version is newer")
	ErrDuplicate     = errors.New("same version already installed")
	ErrRejected      = errors.New("install declined")
	ErrNoUpdateURL   = errors.New("script has no update location")
)

// Result is the tagged result of an install attempt. Script is set for
// every outcome past validation; Previous is the installed script the
// attempt collided with, if any.
type Result struct {
	Outcome     Outcome
	Script      *types.Script
	Previous    *types.Script
	Diagnostics []match.Diagnostic
	Err         error
}

// Error returns the failure message, or "" for committed outcomes
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
