//go:build !linux

package gate

import (
	"os"

	appErr "pmcharness/pkg/errors"
)

// Gate needs memfd and futex, which only linux provides.
type Gate struct{}

func New(name string) (*Gate, error) {
	return nil, appErr.New(appErr.SetupFailure).WithMessage("gates require linux")
}

func Open(file *os.File) (*Gate, error) {
	return nil, appErr.New(appErr.SetupFailure).WithMessage("gates require linux")
}

func (g *Gate) File() *os.File { return nil }
func (g *Gate) Acquire() error { return nil }
func (g *Gate) Release() error { return nil }
func (g *Gate) Pass() error    { return nil }
func (g *Gate) IsOpen() bool   { return false }
func (g *Gate) Close() error   { return nil }
