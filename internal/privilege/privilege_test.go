package privilege

import (
	"os"
	"path/filepath"
	"testing"

	appErr "pmcharness/pkg/errors"
)

func TestSudoOwner(t *testing.T) {
	t.Setenv("SUDO_UID", "")
	t.Setenv("SUDO_GID", "")
	if _, ok, err := SudoOwner(); ok || err != nil {
		t.Fatalf("SudoOwner() ok=%v err=%v without sudo", ok, err)
	}

	t.Setenv("SUDO_UID", "1000")
	t.Setenv("SUDO_GID", "1001")
	owner, ok, err := SudoOwner()
	if err != nil || !ok {
		t.Fatalf("SudoOwner() ok=%v err=%v", ok, err)
	}
	if owner.UID != 1000 || owner.GID != 1001 {
		t.Fatalf("owner = %+v", owner)
	}

	t.Setenv("SUDO_UID", "alice")
	if _, _, err := SudoOwner(); !appErr.Is(err, appErr.UsageFailure) {
		t.Fatalf("expected usage failure, got %v", err)
	}
}

func TestChownToSelfAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.out")
	if err := os.WriteFile(path, []byte("A|\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	self := Owner{UID: os.Getuid(), GID: os.Getgid()}
	if err := Chown(self, path, path+".attacker"); err != nil {
		t.Fatalf("chown: %v", err)
	}
}

func TestRequireRoot(t *testing.T) {
	err := RequireRoot()
	if os.Geteuid() == 0 {
		if err != nil {
			t.Fatalf("root should pass: %v", err)
		}
		return
	}
	if appErr.GetCode(err) != appErr.PrivilegeRequired {
		t.Fatalf("expected privilege error, got %v", err)
	}
}
