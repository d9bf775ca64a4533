package result

import (
	"fmt"
	"io"

	"pmcharness/internal/counter"
)

// Dump prints one sample counter by counter.
func Dump(w io.Writer, role string, repetition int, fixed []string, specs counter.Specs, values Sample) {
	_, _ = fmt.Fprintf(w, "[%s #%d]\n", role, repetition)
	for i, name := range fixed {
		if i >= len(values) {
			return
		}
		_, _ = fmt.Fprintf(w, "  %-32s %20d  (fixed)\n", name, values[i])
	}
	for i, spec := range specs {
		idx := len(fixed) + i
		if idx >= len(values) {
			return
		}
		_, _ = fmt.Fprintf(w, "  %-32s %20d  key=%s mask=%s full=%s config=%#x",
			spec.ID(), values[idx], spec.Key, spec.Mask, spec.Full, spec.Config)
		if spec.Description != "" {
			_, _ = fmt.Fprintf(w, "  %s", spec.Description)
		}
		_, _ = fmt.Fprintln(w)
	}
}
