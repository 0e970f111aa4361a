package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSimpleProgress(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		want  string
	}{
		{"known total", 4, "(4/4)"},
		{"unknown total", 0, "Progress: 3 logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			progress := NewProgressReporter(buf)
			progress.Start(tt.total)
			progress.Update(3)
			progress.Finish()

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
			if !strings.HasSuffix(out, "\n") {
				t.Error("Finish() should end the line")
			}
		})
	}
}

func TestSimpleProgressClampsOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(2)
	progress.Update(5)

	if !strings.Contains(buf.String(), "100.0%") {
		t.Errorf("overflowing progress should clamp to 100%%: %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(10)
	progress.Error(errors.New("stream broke"))

	if !strings.Contains(buf.String(), "Error: stream broke") {
		t.Errorf("output = %q", buf.String())
	}
}
