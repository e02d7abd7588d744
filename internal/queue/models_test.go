package queue

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Fatal("pending/processing must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatal("completed/failed must be terminal")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus("  Processing "); !ok || status != StatusProcessing {
		t.Fatalf("ParseStatus normalization failed: %q %v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("ParseStatus accepted unknown status")
	}
	if _, ok := ParseStatus(""); ok {
		t.Fatal("ParseStatus accepted empty input")
	}
}

func TestParseInputType(t *testing.T) {
	if it, ok := ParseInputType("FILE_UPLOAD"); !ok || it != InputFile {
		t.Fatalf("ParseInputType(FILE_UPLOAD) = %q %v", it, ok)
	}
	if it, ok := ParseInputType("remote_url"); !ok || it != InputRemoteURL {
		t.Fatalf("ParseInputType(remote_url) = %q %v", it, ok)
	}
	if _, ok := ParseInputType("carrier_pigeon"); ok {
		t.Fatal("ParseInputType accepted unknown input type")
	}
}

func TestClampProgress(t *testing.T) {
	cases := []struct{ in, want int }{
		{-10, 0},
		{0, 0},
		{57, 57},
		{100, 100},
		{150, 100},
	}
	for _, tc := range cases {
		if got := ClampProgress(tc.in); got != tc.want {
			t.Errorf("ClampProgress(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSetProgressClampsAndTouches(t *testing.T) {
	now := time.Now().UTC()
	job := Job{Progress: 10}
	job.SetProgress(250, now)
	if job.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", job.Progress)
	}
	if !job.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", job.UpdatedAt, now)
	}
}

func TestStemsTotalSize(t *testing.T) {
	stems := Stems{
		Vocals: StemInfo{Size: 10},
		Drums:  StemInfo{Size: 20},
		Bass:   StemInfo{Size: 30},
		Other:  StemInfo{Size: 40},
	}
	if got := stems.TotalSize(); got != 100 {
		t.Fatalf("TotalSize = %d, want 100", got)
	}
}
