package counter

import (
	"encoding/binary"

	appErr "pmcharness/pkg/errors"
)

// DecodeGroupRead decodes a PERF_FORMAT_GROUP read: a counter count followed by one value per member.
func DecodeGroupRead(buf []byte, expected int) ([]uint64, error) {
	if len(buf) < 8 {
		return nil, appErr.Newf(appErr.ShortRead, "group read returned %d bytes", len(buf))
	}
	nr := binary.NativeEndian.Uint64(buf[:8])
	if nr != uint64(expected) {
		return nil, appErr.Newf(appErr.CountMismatch, "read %d counters, expected %d", nr, expected)
	}
	need := (1 + expected) * 8
	if len(buf) < need {
		return nil, appErr.Newf(appErr.ShortRead, "group read returned %d bytes, need %d", len(buf), need)
	}
	values := make([]uint64, expected)
	for i := range values {
		off := (i + 1) * 8
		values[i] = binary.NativeEndian.Uint64(buf[off : off+8])
	}
	return values, nil
}
