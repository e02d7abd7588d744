package separation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/demucs"))
	if cli.binary != "/opt/demucs" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestSeparateRequiresInput(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), Request{OutputDir: "/tmp", Model: "htdemucs"}, nil); err == nil {
		t.Fatal("expected error when input path is empty")
	}
}

func TestSeparateRequiresOutputDir(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), Request{InputPath: "/media/track.mp3", Model: "htdemucs"}, nil); err == nil {
		t.Fatal("expected error when output directory is empty")
	}
}

func TestSeparateRequiresModel(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Separate(context.Background(), Request{InputPath: "/media/track.mp3", OutputDir: "/tmp"}, nil); err == nil {
		t.Fatal("expected error when model is empty")
	}
}

func TestSeparateBuildsEngineArgs(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "STEMD_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "stems")
	writeStemFixtures(t, outputDir, "htdemucs", "track", ".mp3")

	cli := NewCLI()
	req := Request{
		InputPath: filepath.Join(tempDir, "track.mp3"),
		OutputDir: outputDir,
		Model:     "htdemucs",
		Format:    "mp3",
		Normalize: true,
	}
	if _, err := cli.Separate(context.Background(), req, nil); err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}

	if len(capturedArgs) < 2 || capturedArgs[0] != "-m" || capturedArgs[1] != "demucs" {
		t.Fatalf("expected module invocation prefix, got %v", capturedArgs)
	}
	for _, want := range []string{"-n", "htdemucs", "-o", outputDir, "--mp3", "--clip-mode", "rescale", "-d", "cpu"} {
		if findArg(capturedArgs, want) == -1 {
			t.Fatalf("expected args to include %q, got %v", want, capturedArgs)
		}
	}
	if capturedArgs[len(capturedArgs)-1] != req.InputPath {
		t.Fatalf("expected input path as final arg, got %v", capturedArgs)
	}
}

func TestSeparateGPUOmitsCPUDevice(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "STEMD_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "stems")
	writeStemFixtures(t, outputDir, "htdemucs", "track", ".wav")

	cli := NewCLI(WithGPU(true))
	req := Request{InputPath: filepath.Join(tempDir, "track.wav"), OutputDir: outputDir, Model: "htdemucs"}
	if _, err := cli.Separate(context.Background(), req, nil); err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}
	if findArg(capturedArgs, "cpu") != -1 {
		t.Fatalf("expected no cpu device arg with GPU enabled, got %v", capturedArgs)
	}
}

func TestSeparateSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "stems")
	writeStemFixtures(t, outputDir, "htdemucs", "song", ".wav")

	cli := NewCLI()
	req := Request{InputPath: filepath.Join(tempDir, "song.wav"), OutputDir: outputDir, Model: "htdemucs"}

	var updates []int
	stems, err := cli.Separate(context.Background(), req, func(pct int) {
		updates = append(updates, pct)
	})
	if err != nil {
		t.Fatalf("Separate returned error: %v", err)
	}

	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	if updates[len(updates)-1] != 100 {
		t.Fatalf("expected final update of 100, got %d", updates[len(updates)-1])
	}

	for _, stem := range stems.All() {
		if stem.Path == "" || stem.Size == 0 {
			t.Fatalf("incomplete stem entry: %+v", stem)
		}
	}
	if got := filepath.Base(stems.Vocals.Path); got != "vocals.wav" {
		t.Fatalf("vocals path = %q", got)
	}
	if stems.TotalSize() == 0 {
		t.Fatal("expected non-zero total size")
	}
}

func TestSeparateFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	tempDir := t.TempDir()
	cli := NewCLI()
	req := Request{InputPath: filepath.Join(tempDir, "song.wav"), OutputDir: filepath.Join(tempDir, "stems"), Model: "htdemucs"}
	if _, err := cli.Separate(context.Background(), req, nil); err == nil {
		t.Fatal("expected separation failure error")
	}
}

func TestSeparateMissingStems(t *testing.T) {
	setHelperCommand(t, "success")

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "stems")
	trackDir := filepath.Join(outputDir, "htdemucs", "song")
	if err := os.MkdirAll(trackDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"vocals.wav", "drums.wav", "bass.wav"} {
		if err := os.WriteFile(filepath.Join(trackDir, name), []byte("pcm"), 0o644); err != nil {
			t.Fatalf("write stem: %v", err)
		}
	}

	cli := NewCLI()
	req := Request{InputPath: filepath.Join(tempDir, "song.wav"), OutputDir: outputDir, Model: "htdemucs"}
	_, err := cli.Separate(context.Background(), req, nil)
	if err == nil || !strings.Contains(err.Error(), "other") {
		t.Fatalf("expected missing-stem error naming other, got %v", err)
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		line   string
		want   int
		wantOK bool
	}{
		{" 45%|████████      | 123/270", 45, true},
		{"100%|██████████████| 270/270", 100, true},
		{"Separating track song.wav", 0, false},
		{"progress 12% then 80% later", 80, true},
		{"999% bogus", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePercent(tc.line)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("parsePercent(%q) = %d %v, want %d %v", tc.line, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestCollectStemsMissingRoot(t *testing.T) {
	if _, err := CollectStems(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing output root")
	}
}

func writeStemFixtures(t *testing.T, outputDir, model, track, ext string) {
	t.Helper()
	trackDir := filepath.Join(outputDir, model, track)
	if err := os.MkdirAll(trackDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, stem := range stemNames {
		if err := os.WriteFile(filepath.Join(trackDir, stem+ext), []byte("pcm-data"), 0o644); err != nil {
			t.Fatalf("write stem %s: %v", stem, err)
		}
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
	case "success":
		fmt.Println("Selected model is a bag of 1 models.")
		fmt.Println(" 10%|██              | 27/270")
		fmt.Println(" 55%|████████        | 148/270")
		fmt.Println("100%|████████████████| 270/270")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "CUDA out of memory")
		os.Exit(1)
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
