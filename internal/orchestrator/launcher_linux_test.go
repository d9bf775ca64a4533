//go:build linux

package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"pmcharness/internal/gate"
	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"

	"golang.org/x/sys/unix"
)

func buildSubjectInit(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	_, file, _, _ := runtime.Caller(0)
	moduleRoot := filepath.Join(filepath.Dir(file), "..", "..")

	helperPath := filepath.Join(t.TempDir(), "subject-init")
	cmd := exec.Command("go", "build", "-o", helperPath, "./cmd/subject-init")
	cmd.Dir = moduleRoot
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build helper failed: %v: %s", err, string(output))
	}
	return helperPath
}

func allowedCore(t *testing.T) int {
	t.Helper()
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		t.Skipf("affinity unavailable: %v", err)
	}
	for i := 0; i < 1024; i++ {
		if set.IsSet(i) {
			return i
		}
	}
	t.Skip("no allowed core")
	return 0
}

func launchShell(t *testing.T, l Launcher, script string, env ...string) (*Process, *gate.Gate) {
	t.Helper()
	g, err := gate.New("pmc-launch-test")
	if err != nil {
		t.Skipf("gate unavailable: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	if err := g.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	s, err := subject.NewBuilder(subject.Victim, "/bin/sh").
		Params("-c '" + script + "'").
		Env(env...).
		Core(allowedCore(t)).
		Realtime(false).
		Build()
	if err != nil {
		t.Fatalf("build subject: %v", err)
	}
	p, err := l.Launch(context.Background(), s, g, nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	t.Cleanup(func() { _ = p.Kill() })
	return p, g
}

func TestLaunchBlocksUntilRelease(t *testing.T) {
	l, err := NewLauncher(Config{HelperPath: buildSubjectInit(t)})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	marker := filepath.Join(t.TempDir(), "ran")
	p, g := launchShell(t, l, `echo "$MARK" > "$OUT"; exit 3`, "OUT="+marker, "MARK=released")

	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("subject ran before release")
	}

	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if p.ExitCode() != 3 {
		t.Fatalf("exit code = %d, want 3", p.ExitCode())
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if string(data) != "released\n" {
		t.Fatalf("marker = %q", string(data))
	}
}

func TestLaunchReportsExecFailure(t *testing.T) {
	l, err := NewLauncher(Config{HelperPath: buildSubjectInit(t)})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	g, err := gate.New("pmc-exec-test")
	if err != nil {
		t.Skipf("gate unavailable: %v", err)
	}
	defer g.Close()
	if err := g.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	s, err := subject.NewBuilder(subject.Attacker, "/nonexistent/attacker").Core(allowedCore(t)).Realtime(false).Build()
	if err != nil {
		t.Fatalf("build subject: %v", err)
	}
	p, err := l.Launch(context.Background(), s, g, nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	err = p.Wait()
	if appErr.GetCode(err) != appErr.ExecFailed {
		t.Fatalf("expected exec failure, got %v", err)
	}
	if appErr.ExitCode(err) != 6 {
		t.Fatalf("exit code = %d, want 6", appErr.ExitCode(err))
	}
}

func TestLaunchMissingHelper(t *testing.T) {
	l, err := NewLauncher(Config{HelperPath: filepath.Join(t.TempDir(), "missing-helper")})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	g, err := gate.New("pmc-missing-helper")
	if err != nil {
		t.Skipf("gate unavailable: %v", err)
	}
	defer g.Close()
	s, err := subject.NewBuilder(subject.Victim, "/bin/true").Build()
	if err != nil {
		t.Fatalf("build subject: %v", err)
	}
	if _, err := l.Launch(context.Background(), s, g, nil); appErr.GetCode(err) != appErr.StartFailed {
		t.Fatalf("expected start failure, got %v", err)
	}
}
