package validation_test

import (
	"errors"
	"path/filepath"
	"testing"

	"stemd/internal/config"
	"stemd/internal/services"
	"stemd/internal/testsupport"
	"stemd/internal/validation"
)

var formats = []string{"mp3", "wav", "m4a", "flac", "ogg"}

func TestCheckExtension(t *testing.T) {
	cases := []struct {
		path   string
		wantOK bool
	}{
		{"track.mp3", true},
		{"track.WAV", true},
		{"album/track.flac", true},
		{"track.txt", false},
		{"track", false},
		{"archive.tar.gz", false},
	}
	for _, tc := range cases {
		err := validation.CheckExtension(tc.path, formats)
		if tc.wantOK && err != nil {
			t.Errorf("CheckExtension(%q) = %v, want nil", tc.path, err)
		}
		if !tc.wantOK && !errors.Is(err, services.ErrValidation) {
			t.Errorf("CheckExtension(%q) = %v, want validation error", tc.path, err)
		}
	}
}

func TestCheckFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.wav")
	testsupport.WriteFile(t, path, 4096)

	if err := validation.CheckFileSize(path, 8192); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	if err := validation.CheckFileSize(path, 0); err != nil {
		t.Fatalf("disabled limit: %v", err)
	}
	if err := validation.CheckFileSize(path, 1024); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("over limit err = %v, want validation error", err)
	}
	if err := validation.CheckFileSize(filepath.Join(dir, "missing.wav"), 8192); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing file err = %v, want validation error", err)
	}
	if err := validation.CheckFileSize(dir, 8192); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("directory err = %v, want validation error", err)
	}
}

func TestCheckDuration(t *testing.T) {
	if err := validation.CheckDuration(120, 600); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	if err := validation.CheckDuration(120, 0); err != nil {
		t.Fatalf("disabled limit: %v", err)
	}
	if err := validation.CheckDuration(601, 600); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("over limit err = %v, want validation error", err)
	}
	if err := validation.CheckDuration(0, 600); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("zero duration err = %v, want validation error", err)
	}
}

func TestCheckURL(t *testing.T) {
	if err := validation.CheckURL("https://example.com/watch?v=abc"); err != nil {
		t.Fatalf("https url: %v", err)
	}
	if err := validation.CheckURL("http://example.com/a"); err != nil {
		t.Fatalf("http url: %v", err)
	}
	for _, raw := range []string{"ftp://example.com/a", "example.com/a", "https://", ""} {
		if err := validation.CheckURL(raw); !errors.Is(err, services.ErrValidation) {
			t.Errorf("CheckURL(%q) = %v, want validation error", raw, err)
		}
	}
}

func TestCheckFileInput(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteAudioFixture(t, dir, "song.mp3")

	limits := config.Limits{MaxFileSizeBytes: 1 << 20, Formats: formats}
	if err := validation.CheckFileInput(path, limits); err != nil {
		t.Fatalf("valid input: %v", err)
	}

	limits.MaxFileSizeBytes = 1
	if err := validation.CheckFileInput(path, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("oversize err = %v, want validation error", err)
	}
}
