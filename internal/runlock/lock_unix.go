//go:build unix

package runlock

import "golang.org/x/sys/unix"

// alive reports whether pid exists. EPERM means it exists under another
// user.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
