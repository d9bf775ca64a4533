//go:build !linux

package orchestrator

import (
	appErr "pmcharness/pkg/errors"
)

func PinSelf(core int) error {
	return appErr.New(appErr.AffinityFailed).WithMessage("core pinning is only supported on linux")
}
