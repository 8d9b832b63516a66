//go:build !unix

package runlock

import "os"

// alive reports whether pid exists. Only unix can probe a process without
// touching it; elsewhere a process that can be opened counts as alive.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
