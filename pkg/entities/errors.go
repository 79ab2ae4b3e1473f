package entities

import "github.com/pkg/errors"

// Transport level: the run is aborted.
var (
	ErrPortUnavailable    = errors.New("serial port unavailable")
	ErrUnrecognizedDevice = errors.New("unrecognized device")
)

// File level: the file is skipped, the batch continues.
var (
	ErrRejectedFormat     = errors.New("rejected format")
	ErrCorruptData        = errors.New("corrupt data")
	ErrUnsupportedVariant = errors.New("unsupported variant")
)

// Collision level: the source file is left untouched.
var ErrBackupUnavailable = errors.New("backup folder unavailable")

// Caller level.
var (
	ErrImportAlreadyRunning = errors.New("import already running")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// FileOutcomeFor maps a per-file error to the outcome recorded in the run summary.
func FileOutcomeFor(err error) FileOutcome {
	switch {
	case err == nil:
		return OutcomeImported
	case errors.Is(err, ErrRejectedFormat):
		return OutcomeRejectedFormat
	case errors.Is(err, ErrUnsupportedVariant):
		return OutcomeUnsupportedVariant
	case errors.Is(err, ErrBackupUnavailable):
		return OutcomeBackupUnavailable
	case errors.Is(err, ErrCorruptData):
		return OutcomeCorruptData
	default:
		return OutcomeFailed
	}
}
