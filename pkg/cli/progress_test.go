package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedProgress(buf *bytes.Buffer) (*SimpleProgress, *time.Time) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	p := NewProgressReporter(buf).(*SimpleProgress)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	p, now := fixedProgress(buf)

	p.Start(10)
	*now = now.Add(2 * time.Second)
	p.Update(5, 1000)

	out := buf.String()
	if !strings.Contains(out, "50.0% (5/10)") {
		t.Errorf("missing percentage in %q", out)
	}
	if !strings.Contains(out, "500 calls/s") {
		t.Errorf("missing call rate in %q", out)
	}

	p.Finish()
	if !strings.Contains(buf.String(), "100.0% (10/10)") {
		t.Errorf("Finish() did not complete the bar: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSimpleProgressClampsOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	p, _ := fixedProgress(buf)

	p.Start(4)
	p.Update(9, 0)
	if !strings.Contains(buf.String(), "(4/4)") {
		t.Errorf("Update() past total not clamped: %q", buf.String())
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	p, _ := fixedProgress(buf)

	p.Start(0)
	p.Update(3, 3)
	p.Finish()

	if strings.Contains(buf.String(), "Progress:") {
		t.Errorf("zero total should render nothing, got %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	p, _ := fixedProgress(buf)

	p.Start(10)
	p.Error(errors.New("store unavailable"))

	if !strings.Contains(buf.String(), "Error: store unavailable") {
		t.Errorf("missing error in %q", buf.String())
	}
}
