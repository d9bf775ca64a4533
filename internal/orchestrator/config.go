package orchestrator

// Config controls how subjects are launched.
type Config struct {
	// HelperPath is the subject-init binary; resolved through $PATH when it has no slash.
	HelperPath string
}
