package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestPlainConsole(t *testing.T) {
	var buf bytes.Buffer
	c := Plain(&buf)

	c.Info("Opentitan repository detected, skipping clone")
	c.Errorf("Error: Opentitan ROM not found at %s", "/x/rom.vmem")
	c.Warn("careful")
	c.Muted("quiet")

	want := "Opentitan repository detected, skipping clone\n" +
		"Error: Opentitan ROM not found at /x/rom.vmem\n" +
		"careful\n" +
		"quiet\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if c.Colored() {
		t.Error("Plain console reports color")
	}
}

func TestNew_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	c.Info("hello")

	if c.Colored() {
		t.Error("a bytes.Buffer is not a terminal")
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("unexpected escape sequence in %q", buf.String())
	}
}

func TestConsole_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	c := Plain(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Infof("line %s", strings.Repeat("x", 64))
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line != "line "+strings.Repeat("x", 64) {
			t.Fatalf("interleaved line %q", line)
		}
	}
}
