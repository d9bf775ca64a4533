package result

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appErr "pmcharness/pkg/errors"
)

const (
	separator      = "|"
	attackerSuffix = ".attacker"
)

// Sample is one repetition's counter values: fixed counters first, then configured ones.
type Sample []uint64

// AttackerPath names the attacker's result file next to the victim's.
func AttackerPath(output string) string {
	return output + attackerSuffix
}

// Header renders the column line, each identifier followed by a separator.
func Header(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteString(separator)
	}
	b.WriteByte('\n')
	return b.String()
}

// Row renders one sample line.
func Row(values Sample) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.FormatUint(v, 10))
		b.WriteString(separator)
	}
	b.WriteByte('\n')
	return b.String()
}

// Sink appends samples to a pipe-separated result file.
type Sink struct {
	path  string
	file  *os.File
	width int
}

// Open creates or extends a result file. The header is written only into an empty
// file; an existing file must carry the same header.
func Open(path string, ids []string) (*Sink, error) {
	if len(ids) == 0 {
		return nil, appErr.New(appErr.InvalidConfig).WithMessagef("no counters for %s", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidPath, "create result directory %s", dir)
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidPath, "open result file %s", path)
	}
	s := &Sink{path: path, file: file, width: len(ids)}
	if err := s.writeHeader(Header(ids)); err != nil {
		_ = file.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) writeHeader(header string) error {
	info, err := s.file.Stat()
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultWrite, "stat %s", s.path)
	}
	if info.Size() == 0 {
		if _, err := s.file.WriteString(header); err != nil {
			return appErr.Wrapf(err, appErr.ResultWrite, "write header to %s", s.path)
		}
		return nil
	}

	existing, err := bufio.NewReader(io.NewSectionReader(s.file, 0, info.Size())).ReadString('\n')
	if err != nil && err != io.EOF {
		return appErr.Wrapf(err, appErr.ResultWrite, "read header of %s", s.path)
	}
	if existing != header {
		return appErr.New(appErr.InvalidConfig).WithMessagef("%s has header %q, counters configured as %q",
			s.path, strings.TrimSpace(existing), strings.TrimSpace(header))
	}
	return nil
}

// Append writes one row immediately.
func (s *Sink) Append(values Sample) error {
	if len(values) != s.width {
		return appErr.Newf(appErr.ResultWrite, "%s expects %d values, got %d", s.path, s.width, len(values))
	}
	if _, err := s.file.WriteString(Row(values)); err != nil {
		return appErr.Wrapf(err, appErr.ResultWrite, "append to %s", s.path)
	}
	return nil
}

func (s *Sink) Path() string { return s.path }

func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultWrite, "close %s", s.path)
	}
	return nil
}
