package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/benchsuite/reproduce/internal/config"
	"github.com/benchsuite/reproduce/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log of past runs",
	Long: `View and filter the JSON debug log written by run, build and bench.

Examples:
  # Show the last 50 records
  reproduce logs

  # Show every record of the build phase
  reproduce logs --phase build -n 0

  # Follow the log while a run is in progress
  reproduce logs -f

  # Only warnings and errors from the last hour
  reproduce logs --level warn --since 1h

  # Show the simulator's own output instead
  reproduce logs --simulator`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsPhase     string
	logsSimulator bool
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Filter by run phase (build/simulator/bench)")
	logsCmd.Flags().BoolVar(&logsSimulator, "simulator", false, "Show the simulator output log")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Command string         `json:"command,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Extra   map[string]any `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "command", "phase", "stage"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}

	return nil
}

// logFilter selects log entries. Zero values match everything.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
	phase    string
}

func (f logFilter) match(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.phase != "" && entry.Phase != f.phase {
		return false
	}
	if f.grep != nil {
		text := entry.Msg
		for _, v := range entry.Extra {
			text += " " + fmt.Sprint(v)
		}
		if !f.grep.MatchString(text) {
			return false
		}
	}
	return true
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// logFormatter renders entries, in color when the output is a terminal.
type logFormatter struct {
	time   lipgloss.Style
	levels map[string]lipgloss.Style
	field  lipgloss.Style
}

func newLogFormatter(w io.Writer) *logFormatter {
	r := lipgloss.NewRenderer(w)
	return &logFormatter{
		time: r.NewStyle().Foreground(lipgloss.Color("8")),
		levels: map[string]lipgloss.Style{
			logging.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("8")),
			logging.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("4")),
			logging.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			logging.LevelError: r.NewStyle().Foreground(lipgloss.Color("1")),
		},
		field: r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

func (f *logFormatter) format(entry *logEntry) string {
	var sb strings.Builder

	level := strings.ToUpper(entry.Level)
	sb.WriteString(f.time.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(f.levels[level].Render("[" + level + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	for _, kv := range [][2]string{{"phase", entry.Phase}, {"stage", entry.Stage}} {
		if kv[1] != "" {
			sb.WriteString(" ")
			sb.WriteString(f.field.Render(kv[0] + "=" + kv[1]))
		}
	}

	for _, key := range slices.Sorted(maps.Keys(entry.Extra)) {
		sb.WriteString(" ")
		sb.WriteString(f.field.Render(key + "="))
		sb.WriteString(fmt.Sprint(entry.Extra[key]))
	}

	return sb.String()
}

// formatLine renders one raw line, passing non-JSON lines through.
func (f *logFormatter) formatLine(line string, filter logFilter) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, true
	}
	if !filter.match(&entry) {
		return "", false
	}
	return f.format(&entry), true
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	repoRoot, err := cfg.Paths.ResolveRepoRoot()
	if err != nil {
		return err
	}

	logPath := filepath.Join(cfg.LogDir(repoRoot), logging.LogFileName)
	if logsSimulator {
		logPath = cfg.ResolveOutputLog(repoRoot)
		if logPath == "" {
			return fmt.Errorf("simulator.output_log is disabled")
		}
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	filter := logFilter{minLevel: -1}
	if logsLevel != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		filter.grep, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}
	filter.phase = logsPhase

	f := newLogFormatter(out)
	if logsFollow {
		return followLogs(cmd.Context(), out, logPath, f, filter)
	}
	return displayLogs(out, logPath, logsTail, f, filter)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(w io.Writer, logPath string, tail int, f *logFormatter, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	// Simulator output and command lines can be long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if out, ok := f.formatLine(line, filter); ok {
			entries = append(entries, out)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(w, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}

	return nil
}

// followLogs implements tail -f behavior until ctx is canceled.
func followLogs(ctx context.Context, w io.Writer, logPath string, f *logFormatter, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(w, "Following %s... (Ctrl+C to stop)\n\n", logPath)

	reader := bufio.NewReader(file)
	// A record may be read in pieces while it is being written.
	var pending string
	for {
		chunk, err := reader.ReadString('\n')
		pending += chunk
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line := strings.TrimSpace(pending)
		pending = ""
		if line == "" {
			continue
		}
		if out, ok := f.formatLine(line, filter); ok {
			fmt.Fprintln(w, out)
		}
	}
}
