//go:build !unix

package simulator

import (
	"errors"
	"os"
	"os/exec"
)

var errNoProcessGroups = errors.New("process groups are not supported on this platform")

func setProcessGroup(*exec.Cmd) {}

func (p *ExecProcess) startPTY(*exec.Cmd) error {
	return errNoProcessGroups
}

func signalGroup(int, os.Signal) error {
	return errNoProcessGroups
}

func normalizeReadError(err error) error {
	return err
}
