package ui

import (
	"errors"
	"math"
	"strings"
	"testing"

	"bofpass/internal/pipeline"
)

func TestProgressModelFollowsEvents(t *testing.T) {
	m := newProgressModel("renaming", []string{"a.bir", "b.bir"}, nil)
	events := []pipeline.Event{
		{Stage: pipeline.StageIndex, Status: pipeline.StatusWorking},
		{File: "a.bir", Stage: pipeline.StageLoad, Status: pipeline.StatusWorking},
		{File: "a.bir", Stage: pipeline.StageLoad, Status: pipeline.StatusDone},
		{File: "b.bir", Stage: pipeline.StageLoad, Status: pipeline.StatusError, Err: errors.New("line 2: boom")},
		{File: "unknown.bir", Stage: pipeline.StageLoad, Status: pipeline.StatusWorking},
	}
	for _, ev := range events {
		m.applyEvent(ev)
	}
	if m.stageLabel != "index indexing" {
		t.Fatalf("stage label = %q", m.stageLabel)
	}
	if m.items[0].status != "loading" || m.items[1].status != "error" {
		t.Fatalf("statuses = %q, %q", m.items[0].status, m.items[1].status)
	}
	if got := m.percent(); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("percent = %v, want 0.6", got)
	}

	m.applyEvent(pipeline.Event{File: "a.bir", Stage: pipeline.StageWrite, Status: pipeline.StatusDone})
	if got := m.percent(); got != 1 {
		t.Fatalf("percent = %v, want 1", got)
	}
	m.done = true
	view := m.View()
	for _, want := range []string{"1 failed", "line 2: boom", "a.bir"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"averyverylongname.bir", 10, "aver..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
