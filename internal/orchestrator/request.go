package orchestrator

import (
	"encoding/json"
	"io"

	appErr "pmcharness/pkg/errors"
)

// Descriptor layout of a launched helper.
const (
	GateFd   = 3
	StatusFd = 4
	// GroupFd carries the counter group handle when the backend exposes one.
	GroupFd = 5
)

// LaunchRequest is handed to subject-init on stdin.
type LaunchRequest struct {
	Role     string   `json:"role"`
	Path     string   `json:"path"`
	Args     []string `json:"args"`
	Env      []string `json:"env"`
	Core     int      `json:"core"`
	Realtime bool     `json:"realtime"`
	Priority int      `json:"priority"`
	Nice     int      `json:"nice"`
}

// Status is written by subject-init to the status descriptor when it fails before exec.
type Status struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// DecodeRequest reads one launch request.
func DecodeRequest(r io.Reader) (LaunchRequest, error) {
	var req LaunchRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return LaunchRequest{}, appErr.Wrapf(err, appErr.StartFailed, "decode launch request")
	}
	if req.Path == "" || len(req.Args) == 0 {
		return LaunchRequest{}, appErr.New(appErr.StartFailed).WithMessage("launch request has no command")
	}
	return req, nil
}

// WriteStatus reports a pre-exec failure.
func WriteStatus(w io.Writer, err error) error {
	st := Status{Code: appErr.GetCode(err), Message: err.Error()}
	return json.NewEncoder(w).Encode(st)
}

// ReadStatus drains the status descriptor. A clean EOF means the subject reached exec.
func ReadStatus(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return appErr.Wrapf(err, appErr.WaitFailed, "read helper status")
	}
	if len(data) == 0 {
		return nil
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return appErr.Wrapf(err, appErr.ExecFailed, "malformed helper status %q", string(data))
	}
	code := st.Code
	if code == appErr.Success {
		code = appErr.ExecFailed
	}
	return appErr.New(code).WithMessage(st.Message)
}
