package galley

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure modes of a migration run.
// Typed errors below wrap these so callers can match with errors.Is and
// still recover the offending artifact with errors.As.
var (
	// ErrNotMaster is returned when a mutating operation is attempted by a
	// process that is not the designated migration master. Callers treat it
	// as an intentional no-op rather than a failure.
	ErrNotMaster = errors.New("galley: not the migration master (set cassandra.migration_master)")

	// ErrArtifactNotFound is returned when a migration or core directory is absent.
	ErrArtifactNotFound = errors.New("galley: artifact directory not found")

	// ErrInvalidArgument is returned for missing or malformed user input,
	// such as an empty migration name.
	ErrInvalidArgument = errors.New("galley: invalid argument")

	// ErrPartialApplication is returned when a statement or process inside a
	// migration fails. The migration is not recorded.
	ErrPartialApplication = errors.New("galley: migration partially applied")

	// ErrAlreadyExists is returned when a guard refuses to overwrite existing
	// state: a keyspace present on load_schema, or an existing core directory.
	ErrAlreadyExists = errors.New("galley: already exists")

	// ErrTransport is returned for connection and HTTP failures.
	ErrTransport = errors.New("galley: transport failure")

	// ErrLedgerInconsistency is returned when a migration executed but its
	// ledger record could not be written.
	ErrLedgerInconsistency = errors.New("galley: migration applied but not recorded")
)

// PartialApplicationError describes a migration that failed part way through.
// Statement is set for native CQL execution; ExitCode and Output are set when
// the migration ran as an external process.
type PartialApplicationError struct {
	Artifact  string
	Statement string
	ExitCode  int
	Output    string
	Err       error
}

func (e *PartialApplicationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %s partially applied", e.Artifact)
	if e.Statement != "" {
		fmt.Fprintf(&b, ": query failed %q", e.Statement)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": process exited with status %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, "\n%s", out)
	}
	return b.String()
}

func (e *PartialApplicationError) Unwrap() error {
	return e.Err
}

func (e *PartialApplicationError) Is(target error) bool {
	return target == ErrPartialApplication
}

// LedgerInconsistencyError is returned when Artifact executed successfully
// but recording it failed. A later run will execute it again.
type LedgerInconsistencyError struct {
	Artifact string
	Err      error
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("migration %s applied but not recorded in ledger: %v", e.Artifact, e.Err)
}

func (e *LedgerInconsistencyError) Unwrap() error {
	return e.Err
}

func (e *LedgerInconsistencyError) Is(target error) bool {
	return target == ErrLedgerInconsistency
}

// IsNotMasterErr returns true if err is or wraps ErrNotMaster.
func IsNotMasterErr(err error) bool {
	return errors.Is(err, ErrNotMaster)
}

// IsArtifactNotFoundErr returns true if err is or wraps ErrArtifactNotFound.
func IsArtifactNotFoundErr(err error) bool {
	return errors.Is(err, ErrArtifactNotFound)
}

// IsInvalidArgumentErr returns true if err is or wraps ErrInvalidArgument.
func IsInvalidArgumentErr(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsPartialApplicationErr returns true if err is or wraps ErrPartialApplication.
func IsPartialApplicationErr(err error) bool {
	return errors.Is(err, ErrPartialApplication)
}

// IsAlreadyExistsErr returns true if err is or wraps ErrAlreadyExists.
func IsAlreadyExistsErr(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsTransportErr returns true if err is or wraps ErrTransport.
func IsTransportErr(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsLedgerInconsistencyErr returns true if err is or wraps ErrLedgerInconsistency.
func IsLedgerInconsistencyErr(err error) bool {
	return errors.Is(err, ErrLedgerInconsistency)
}
