package counter

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	appErr "pmcharness/pkg/errors"
)

const msrPathFormat = "/dev/cpu/%d/msr"

// RegisterFile is a per-core model-specific register device addressed by register number.
type RegisterFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// RegisterOpener opens the register file of a core.
type RegisterOpener func(core int) (RegisterFile, error)

// OpenMSRDevice opens /dev/cpu/<core>/msr for read and write. Requires the msr module and root.
func OpenMSRDevice(core int) (RegisterFile, error) {
	path := fmt.Sprintf(msrPathFormat, core)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, appErr.SetupError(err, "open %s", path)
	}
	return f, nil
}

func readMSR(rf RegisterFile, reg uint32) (uint64, error) {
	var buf [8]byte
	n, err := rf.ReadAt(buf[:], int64(reg))
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, appErr.Wrapf(err, appErr.ShortRead, "read msr %#x", reg)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeMSR(rf RegisterFile, reg uint32, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	n, err := rf.WriteAt(buf[:], int64(reg))
	if err != nil || n != len(buf) {
		if err == nil {
			err = io.ErrShortWrite
		}
		return fmt.Errorf("write msr %#x: %w", reg, err)
	}
	return nil
}

// registerGroup is the shared bookkeeping of the MSR backends.
type registerGroup struct {
	core  int
	rf    RegisterFile
	specs Specs
}

func (g *registerGroup) Handle() *os.File { return nil }

func (g *registerGroup) Close() error {
	if g.rf == nil {
		return nil
	}
	err := g.rf.Close()
	g.rf = nil
	return err
}

// program writes a register while arming; failures are setup errors.
func (g *registerGroup) program(reg uint32, value uint64) error {
	if err := writeMSR(g.rf, reg, value); err != nil {
		return appErr.SetupError(err, "core %d", g.core)
	}
	return nil
}

func (g *registerGroup) write(reg uint32, value uint64) error {
	if err := writeMSR(g.rf, reg, value); err != nil {
		return appErr.IOError(err, "core %d", g.core)
	}
	return nil
}

func (g *registerGroup) read(reg uint32) (uint64, error) {
	v, err := readMSR(g.rf, reg)
	if err != nil {
		return 0, appErr.IOError(err, "core %d", g.core)
	}
	return v, nil
}
