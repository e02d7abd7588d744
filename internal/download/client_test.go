package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"stemd/internal/services"
)

func TestNewCLIWithOptions(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/yt-dlp"), WithFormat("140"))
	if cli.binary != "/opt/yt-dlp" {
		t.Fatalf("binary = %q", cli.binary)
	}
	if cli.format != "140" {
		t.Fatalf("format = %q", cli.format)
	}
}

func TestProbeRequiresURL(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Probe(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestProbeSuccess(t *testing.T) {
	setHelperCommand(t, "probe")

	cli := NewCLI()
	info, err := cli.Probe(context.Background(), "https://example.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Title != "Test Track" {
		t.Fatalf("Title = %q", info.Title)
	}
	if info.DurationSeconds != 245 {
		t.Fatalf("DurationSeconds = %f", info.DurationSeconds)
	}
	if info.ID != "abc123" {
		t.Fatalf("ID = %q", info.ID)
	}
}

func TestProbeUnavailableSource(t *testing.T) {
	setHelperCommand(t, "unavailable")

	cli := NewCLI()
	_, err := cli.Probe(context.Background(), "https://example.com/watch?v=gone")
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("err = %v, want download error", err)
	}
	if !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("err = %v, want unavailable detail", err)
	}
}

func TestFetchRequiresTemplate(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Fetch(context.Background(), "https://example.com/a", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestFetchProducesFile(t *testing.T) {
	tempDir := t.TempDir()
	template := filepath.Join(tempDir, "job-1.%(ext)s")

	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		// The helper stands in for yt-dlp and writes the output file the
		// template describes.
		out := strings.ReplaceAll(template, "%(ext)s", "m4a")
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "STEMD_HELPER_MODE=fetch", "STEMD_HELPER_OUT="+out)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	path, err := cli.Fetch(context.Background(), "https://example.com/watch?v=abc123", template)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if filepath.Ext(path) != ".m4a" {
		t.Fatalf("path = %q, want .m4a file", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}

	for _, want := range []string{"-f", "bestaudio/best", "--no-playlist", "-o", template} {
		if findArg(capturedArgs, want) == -1 {
			t.Fatalf("expected args to include %q, got %v", want, capturedArgs)
		}
	}
}

func TestFetchMissingOutput(t *testing.T) {
	setHelperCommand(t, "noop")

	cli := NewCLI()
	template := filepath.Join(t.TempDir(), "job-2.%(ext)s")
	_, err := cli.Fetch(context.Background(), "https://example.com/watch?v=abc123", template)
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("err = %v, want download error", err)
	}
}

func TestFetchFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	template := filepath.Join(t.TempDir(), "job-3.%(ext)s")
	_, err := cli.Fetch(context.Background(), "https://example.com/watch?v=abc123", template)
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("err = %v, want download error", err)
	}
}

func TestDiscoverOutputPicksDeterministically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"track.webm", "track.m4a"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	path, err := discoverOutput(filepath.Join(dir, "track.%(ext)s"))
	if err != nil {
		t.Fatalf("discoverOutput: %v", err)
	}
	if filepath.Base(path) != "track.m4a" {
		t.Fatalf("path = %q, want lexicographically first match", path)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("STEMD_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("STEMD_HELPER_MODE") {
	case "probe":
		fmt.Println(`{"id":"abc123","title":"Test Track","duration":245,"uploader":"tester","webpage_url":"https://example.com/watch?v=abc123","ext":"m4a"}`)
		os.Exit(0)
	case "unavailable":
		fmt.Fprintln(os.Stderr, "ERROR: [generic] gone: Video unavailable")
		os.Exit(1)
	case "fetch":
		if out := os.Getenv("STEMD_HELPER_OUT"); out != "" {
			_ = os.WriteFile(out, []byte("audio-bytes"), 0o644)
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "ERROR: network timeout")
		os.Exit(1)
	case "noop":
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
