package privilege

import (
	"os"
	"strconv"

	appErr "pmcharness/pkg/errors"
)

// RequireRoot fails unless the effective user is root.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return appErr.New(appErr.PrivilegeRequired).WithMessage("root privileges are required to program counters; rerun with sudo or use --monitor")
	}
	return nil
}

// Owner is the user that invoked sudo.
type Owner struct {
	UID int
	GID int
}

// SudoOwner reads SUDO_UID and SUDO_GID. ok is false when not running under sudo.
func SudoOwner() (owner Owner, ok bool, err error) {
	uidText, gidText := os.Getenv("SUDO_UID"), os.Getenv("SUDO_GID")
	if uidText == "" || gidText == "" {
		return Owner{}, false, nil
	}
	uid, err := strconv.Atoi(uidText)
	if err != nil {
		return Owner{}, false, appErr.Wrapf(err, appErr.InvalidFlags, "invalid SUDO_UID %q", uidText)
	}
	gid, err := strconv.Atoi(gidText)
	if err != nil {
		return Owner{}, false, appErr.Wrapf(err, appErr.InvalidFlags, "invalid SUDO_GID %q", gidText)
	}
	return Owner{UID: uid, GID: gid}, true, nil
}

// RestoreOwnership hands result files back to the sudo caller. Missing files are skipped.
func RestoreOwnership(paths ...string) error {
	owner, ok, err := SudoOwner()
	if err != nil || !ok {
		return err
	}
	return Chown(owner, paths...)
}

func Chown(owner Owner, paths ...string) error {
	for _, path := range paths {
		if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return appErr.Wrapf(err, appErr.ResultWrite, "chown %s", path)
		}
	}
	return nil
}
