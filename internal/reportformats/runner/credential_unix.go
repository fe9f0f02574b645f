//go:build unix

package runner

import (
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

// Account is a resolved local account.
type Account struct {
	Uid int
	Gid int
}

// LookupAccount resolves a user name to its uid and primary gid.
func LookupAccount(name string) (Account, apperrors.Error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Account{}, ErrUnknownAccount.MsgErr("unknown account "+name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Account{}, ErrUnknownAccount.MsgErr("bad uid for "+name, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Account{}, ErrUnknownAccount.MsgErr("bad gid for "+name, err)
	}
	return Account{Uid: uid, Gid: gid}, nil
}

// IsPrivileged reports whether the process can change to another account.
func IsPrivileged() bool {
	return os.Geteuid() == 0
}

// ChownToAccount hands path to the named account so that a command run as
// that account can read and write it.
func ChownToAccount(path, name string) apperrors.Error {
	acct, err := LookupAccount(name)
	if err != nil {
		return err
	}
	if err := os.Chown(path, acct.Uid, acct.Gid); err != nil {
		return ErrPrivilegeDrop.MsgErr("unable to chown "+path, err)
	}
	return nil
}

// setCredential makes the child clear its supplementary groups and switch
// gid then uid before exec, leaving the parent's credentials unchanged.
func setCredential(cmd *exec.Cmd, name string) apperrors.Error {
	acct, err := LookupAccount(name)
	if err != nil {
		return err
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{
		Uid:    uint32(acct.Uid),
		Gid:    uint32(acct.Gid),
		Groups: []uint32{},
	}
	return nil
}
