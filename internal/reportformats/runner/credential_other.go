//go:build !unix

package runner

import (
	"os/exec"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

type Account struct {
	Uid int
	Gid int
}

func LookupAccount(name string) (Account, apperrors.Error) {
	return Account{}, ErrUnsupportedDrop
}

// IsPrivileged is always false here, so callers never ask for a drop.
func IsPrivileged() bool {
	return false
}

func ChownToAccount(path, name string) apperrors.Error {
	return ErrUnsupportedDrop
}

func setCredential(cmd *exec.Cmd, name string) apperrors.Error {
	return ErrUnsupportedDrop
}
