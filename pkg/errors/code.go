package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10099: System & Common errors
// 10100-10199: Usage errors (flags, paths, privilege)
// 10200-10299: Counter setup errors
// 10300-10399: Counter and result I/O errors
// 10400-10499: Scheduling errors
// 10500-10599: Process lifecycle errors

const (
	// Success
	Success ErrorCode = 10000

	// Generic errors
	InternalError ErrorCode = 10001

	// UsageFailure covers invalid flags, bad paths and missing privilege.
	UsageFailure      ErrorCode = 10100
	InvalidFlags      ErrorCode = 10101
	InvalidPath       ErrorCode = 10102
	InvalidConfig     ErrorCode = 10103
	PrivilegeRequired ErrorCode = 10104

	// SetupFailure covers counter allocation and configuration.
	SetupFailure       ErrorCode = 10200
	BackendUnsupported ErrorCode = 10201
	TooManyCounters    ErrorCode = 10202

	// IOFailure covers register and group reads/writes and result persistence.
	IOFailure     ErrorCode = 10300
	CountMismatch ErrorCode = 10301
	ShortRead     ErrorCode = 10302
	ResultWrite   ErrorCode = 10303

	// SchedulingFailure covers affinity and real-time policy escalation.
	SchedulingFailure ErrorCode = 10400
	AffinityFailed    ErrorCode = 10401
	RealtimeDenied    ErrorCode = 10402

	// ProcessFailure covers fork/exec and child lifecycle.
	ProcessFailure ErrorCode = 10500
	StartFailed    ErrorCode = 10501
	ExecFailed     ErrorCode = 10502
	WaitFailed     ErrorCode = 10503
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:       "Success",
	InternalError: "Internal error",

	UsageFailure:      "Invalid usage",
	InvalidFlags:      "Invalid flag combination",
	InvalidPath:       "Invalid path",
	InvalidConfig:     "Invalid configuration",
	PrivilegeRequired: "This program must run as root to access the performance counters",

	SetupFailure:       "Counter setup failed",
	BackendUnsupported: "Counter backend not supported on this host",
	TooManyCounters:    "Too many counters for this backend",

	IOFailure:     "Counter I/O failed",
	CountMismatch: "Counter count mismatch",
	ShortRead:     "Short read from counter group",
	ResultWrite:   "Failed to write result file",

	SchedulingFailure: "Scheduling setup failed",
	AffinityFailed:    "Failed to set CPU affinity",
	RealtimeDenied:    "Failed to escalate to real-time scheduling",

	ProcessFailure: "Process lifecycle failure",
	StartFailed:    "Failed to start subject",
	ExecFailed:     "Failed to execute subject",
	WaitFailed:     "Failed to wait for subject",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Category folds a specific code onto its taxonomy root, e.g. CountMismatch -> IOFailure.
func (c ErrorCode) Category() ErrorCode {
	switch {
	case c == Success:
		return Success
	case c >= 10100 && c < 10200:
		return UsageFailure
	case c >= 10200 && c < 10300:
		return SetupFailure
	case c >= 10300 && c < 10400:
		return IOFailure
	case c >= 10400 && c < 10500:
		return SchedulingFailure
	case c >= 10500 && c < 10600:
		return ProcessFailure
	default:
		return InternalError
	}
}

// ExitCode returns the process exit status reported for the error code
func (c ErrorCode) ExitCode() int {
	switch c.Category() {
	case Success:
		return 0
	case UsageFailure:
		return 2
	case SetupFailure:
		return 3
	case IOFailure:
		return 4
	case SchedulingFailure:
		return 5
	case ProcessFailure:
		return 6
	default:
		return 1
	}
}
