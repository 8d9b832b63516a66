//go:build unix

package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecRunner_Success(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer

	r := NewExecRunner(
		withOutput(&stdout, &stdout),
		WithEnviron(func() []string { return []string{"GREETING=base", "PATH=" + os.Getenv("PATH")} }),
	)

	cmd := New("/bin/sh", []string{"-c", `printf '%s %s' "$GREETING" "$TOOLCHAIN_PATH" > out.txt; pwd`}, dir,
		map[string]string{"GREETING": "override", "TOOLCHAIN_PATH": "/tc"})

	if err := r.Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "override /tc" {
		t.Errorf("child saw env %q, want %q", content, "override /tc")
	}
	if !strings.Contains(stdout.String(), filepath.Base(dir)) {
		t.Errorf("child did not run in %s, stdout %q", dir, stdout.String())
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner(withOutput(&bytes.Buffer{}, &bytes.Buffer{}))

	err := r.Run(context.Background(), New("/bin/sh", []string{"-c", "exit 3"}, "", nil))
	if err == nil {
		t.Fatal("expected error")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error %T is not *ExitError", err)
	}
	if code, ok := ExitCode(err); !ok || code != 3 {
		t.Errorf("ExitCode() = %d, %v; want 3, true", code, ok)
	}
}

func TestExecRunner_StartFailure(t *testing.T) {
	r := NewExecRunner(withOutput(&bytes.Buffer{}, &bytes.Buffer{}))

	err := r.Run(context.Background(), New("/nonexistent/binary", nil, "", nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := ExitCode(err); ok {
		t.Error("start failure should not carry an exit code")
	}
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	if err := NewExecRunner().Run(context.Background(), Command{}); err == nil {
		t.Fatal("expected error for zero Command")
	}
}

func TestExecRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewExecRunner(withOutput(&bytes.Buffer{}, &bytes.Buffer{}))
	err := r.Run(ctx, New("/bin/sh", []string{"-c", "sleep 5"}, "", nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
