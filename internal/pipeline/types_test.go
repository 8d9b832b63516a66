package pipeline

import (
	"testing"

	"github.com/benchsuite/reproduce/internal/command"
)

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeSkipped, "skipped"},
		{OutcomeExecuted, "executed"},
		{OutcomeFailed, "failed"},
		{OutcomeNotRun, "not-run"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.outcome.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStage_Label(t *testing.T) {
	s := Stage{Name: "rom", Action: command.New("x", nil, "", nil)}
	if got := s.Label(); got != "rom" {
		t.Errorf("Label() = %q, want rom", got)
	}
	s.Description = "Verilator test rom"
	if got := s.Label(); got != "Verilator test rom" {
		t.Errorf("Label() = %q, want description", got)
	}
}

func TestReport(t *testing.T) {
	r := &Report{Stages: []StageResult{
		{Name: "a", Outcome: OutcomeSkipped},
		{Name: "b", Outcome: OutcomeExecuted},
		{Name: "c", Outcome: OutcomeSkipped},
	}}

	if got := r.Count(OutcomeSkipped); got != 2 {
		t.Errorf("Count(skipped) = %d, want 2", got)
	}
	if _, ok := r.result("b"); !ok {
		t.Error("Result(b) not found")
	}
	if _, ok := r.result("z"); ok {
		t.Error("Result(z) should not exist")
	}
	if !r.Verified() {
		t.Error("empty Missing should be verified")
	}
}
