package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/benchsuite/reproduce/internal/command"
)

// ExecConfig configures an ExecProcess.
type ExecConfig struct {
	// Command is the program to run, with its directory and environment
	// overrides.
	Command command.Command

	// PTY attaches standard input and output to a pseudo-terminal instead of
	// pipes, so programs that block-buffer a pipe still flush every line.
	PTY bool

	// Stderr receives the program's standard error. Defaults to os.Stderr.
	Stderr io.Writer

	// Environ supplies the base environment. Defaults to os.Environ.
	Environ func() []string
}

// ExecProcess runs the simulator with os/exec as a new session and process
// group leader.
type ExecProcess struct {
	cfg ExecConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	reader  *bufio.Reader
	stdin   io.WriteCloser
	started bool

	waitOnce sync.Once
	waitErr  error
}

// NewExecProcess creates an ExecProcess. Nothing is launched until Start.
func NewExecProcess(cfg ExecConfig) *ExecProcess {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	return &ExecProcess{cfg: cfg}
}

// Start implements Process.
func (p *ExecProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.cfg.Command.IsZero() {
		return errors.New("simulator command has no executable")
	}

	// Not CommandContext: the process group is stopped by Signal, never by
	// a context kill.
	c := exec.Command(p.cfg.Command.Executable(), p.cfg.Command.Args()...)
	c.Dir = p.cfg.Command.Dir()
	c.Env = p.cfg.Command.MergedEnv(p.cfg.Environ())
	c.Stderr = p.cfg.Stderr

	var err error
	if p.cfg.PTY {
		err = p.startPTY(c)
	} else {
		err = p.startPipes(c)
	}
	if err != nil {
		return err
	}

	p.cmd = c
	p.reader = bufio.NewReader(p.stdout)
	p.started = true
	return nil
}

// startPipes wires stdin and stdout through os.Pipe. The parent's copies of
// the child ends are closed after start, so stdout reaches EOF once the
// whole process group has closed it.
func (p *ExecProcess) startPipes(c *exec.Cmd) error {
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return fmt.Errorf("creating stdin pipe: %w", err)
	}

	c.Stdout = outW
	c.Stdin = inR
	setProcessGroup(c)

	startErr := c.Start()
	_ = outW.Close()
	_ = inR.Close()
	if startErr != nil {
		_ = outR.Close()
		_ = inW.Close()
		return startErr
	}

	p.stdout = outR
	p.stdin = inW
	return nil
}

// ReadLine implements Process.
func (p *ExecProcess) ReadLine() (string, error) {
	p.mu.Lock()
	r := p.reader
	p.mu.Unlock()

	if r == nil {
		return "", ErrNotStarted
	}

	line, err := r.ReadString('\n')
	if err != nil {
		err = normalizeReadError(err)
		if line != "" && err == io.EOF {
			// Final unterminated line; EOF follows on the next call.
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// SendInput implements Process.
func (p *ExecProcess) SendInput(input string) error {
	p.mu.Lock()
	w := p.stdin
	p.mu.Unlock()

	if w == nil {
		return ErrNotStarted
	}
	_, err := io.WriteString(w, input)
	return err
}

// Signal implements Process.
func (p *ExecProcess) Signal(sig os.Signal) error {
	pid := p.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	return signalGroup(pid, sig)
}

// Wait implements Process.
func (p *ExecProcess) Wait() error {
	p.mu.Lock()
	c := p.cmd
	p.mu.Unlock()

	if c == nil {
		return ErrNotStarted
	}

	p.waitOnce.Do(func() {
		p.waitErr = c.Wait()
		p.mu.Lock()
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		p.mu.Unlock()
	})
	return p.waitErr
}

// PID implements Process.
func (p *ExecProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close releases the output stream. Safe to call after Wait.
func (p *ExecProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdout == nil {
		return nil
	}
	err := p.stdout.Close()
	p.stdout = nil
	return err
}

var _ Process = (*ExecProcess)(nil)
