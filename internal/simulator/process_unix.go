//go:build unix

package simulator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// setProcessGroup makes the child a session leader, which also makes it the
// leader of a new process group whose id equals its pid.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// startPTY runs the child with its stdin and stdout on a new pseudo-terminal,
// which becomes the controlling terminal of the child's session.
func (p *ExecProcess) startPTY(c *exec.Cmd) error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("opening pty: %w", err)
	}

	c.Stdin = tty
	c.Stdout = tty
	c.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // child's stdin
	}

	startErr := c.Start()
	_ = tty.Close()
	if startErr != nil {
		_ = ptmx.Close()
		return startErr
	}

	p.stdout = ptmx
	p.stdin = nopWriteCloser{ptmx}
	return nil
}

// signalGroup delivers sig to the process group led by pid.
func signalGroup(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}

	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// Already reaped; the group may still have live members.
		pgid = pid
	}
	if err := unix.Kill(-pgid, s); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signaling process group %d: %w", pgid, err)
	}
	return nil
}

// normalizeReadError maps the EIO a pty master returns after the last slave
// descriptor closes to io.EOF.
func normalizeReadError(err error) error {
	if errors.Is(err, syscall.EIO) {
		return io.EOF
	}
	return err
}

// nopWriteCloser shares the pty master between input and output; closing
// it is left to the output side.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
