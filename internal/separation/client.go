package separation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// stemNames enumerates the four sources a separation run must produce.
var stemNames = []string{"vocals", "drums", "bass", "other"}

// percentPattern matches the progress markers demucs writes to its output
// stream, e.g. " 45%|####".
var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// Request describes one separation run.
type Request struct {
	InputPath string
	OutputDir string
	Model     string
	// Format selects the stem container, "wav" or "mp3".
	Format string
	// Normalize rescales clipped output instead of clamping it.
	Normalize bool
}

// StemFile is one produced stem on disk.
type StemFile struct {
	Name string
	Path string
	Size int64
}

// StemSet holds the four stems of a completed run.
type StemSet struct {
	Vocals StemFile
	Drums  StemFile
	Bass   StemFile
	Other  StemFile
}

// All returns the stems in canonical order.
func (s StemSet) All() []StemFile {
	return []StemFile{s.Vocals, s.Drums, s.Bass, s.Other}
}

// TotalSize returns the combined stem size in bytes.
func (s StemSet) TotalSize() int64 {
	var total int64
	for _, stem := range s.All() {
		total += stem.Size
	}
	return total
}

// Client defines separation engine behaviour. Progress is reported as raw
// engine percent in [0, 100].
type Client interface {
	Separate(ctx context.Context, req Request, progress func(percent int)) (StemSet, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithGPU toggles GPU execution. Disabled forces the cpu device.
func WithGPU(enabled bool) Option {
	return func(c *CLI) {
		c.gpu = enabled
	}
}

// CLI wraps the demucs command-line separator.
type CLI struct {
	binary string
	gpu    bool
}

// NewCLI constructs a CLI client using defaults. The engine runs as a
// python module, so binary names the interpreter.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "python3"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

var _ Client = (*CLI)(nil)

// Separate launches a demucs run and collects the produced stems. The
// progress callback receives every percent marker the engine emits.
func (c *CLI) Separate(ctx context.Context, req Request, progress func(percent int)) (StemSet, error) {
	if req.InputPath == "" {
		return StemSet{}, errors.New("input path required")
	}
	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		return StemSet{}, errors.New("output directory required")
	}
	if req.Model == "" {
		return StemSet{}, errors.New("model required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return StemSet{}, fmt.Errorf("create output dir: %w", err)
	}

	args := []string{"-m", "demucs", "-n", req.Model, "-o", outputDir}
	if strings.EqualFold(req.Format, "mp3") {
		args = append(args, "--mp3")
	}
	if req.Normalize {
		args = append(args, "--clip-mode", "rescale")
	}
	if !c.gpu {
		args = append(args, "-d", "cpu")
	}
	args = append(args, req.InputPath)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StemSet{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return StemSet{}, fmt.Errorf("start %s: %w", c.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if progress == nil {
			continue
		}
		if pct, ok := parsePercent(scanner.Text()); ok {
			progress(pct)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return StemSet{}, fmt.Errorf("read %s output: %w", c.binary, err)
	}

	if err := cmd.Wait(); err != nil {
		return StemSet{}, fmt.Errorf("%s separation failed: %w", c.binary, err)
	}

	return CollectStems(outputDir)
}

// parsePercent extracts the last percent marker on a line.
func parsePercent(line string) (int, bool) {
	matches := percentPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	pct, err := strconv.Atoi(last[1])
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// CollectStems walks root for the four named stem files the engine writes
// under <model>/<track>/ and errors when any is missing.
func CollectStems(root string) (StemSet, error) {
	found := make(map[string]StemFile, len(stemNames))
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		name := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
		for _, stem := range stemNames {
			if name != stem {
				continue
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			found[stem] = StemFile{Name: base, Path: path, Size: info.Size()}
		}
		return nil
	})
	if err != nil {
		return StemSet{}, fmt.Errorf("scan output dir: %w", err)
	}

	var missing []string
	for _, stem := range stemNames {
		if _, ok := found[stem]; !ok {
			missing = append(missing, stem)
		}
	}
	if len(missing) > 0 {
		return StemSet{}, fmt.Errorf("incomplete separation output, missing %s", strings.Join(missing, ", "))
	}

	return StemSet{
		Vocals: found["vocals"],
		Drums:  found["drums"],
		Bass:   found["bass"],
		Other:  found["other"],
	}, nil
}
