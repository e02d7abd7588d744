package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"stemd/internal/services"
)

var commandContext = exec.CommandContext

// Info holds the metadata a probe returns before anything is downloaded.
type Info struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	Uploader        string  `json:"uploader"`
	WebpageURL      string  `json:"webpage_url"`
	Ext             string  `json:"ext"`
}

// Client defines remote source behaviour: a metadata-only probe and the
// actual fetch.
type Client interface {
	Probe(ctx context.Context, url string) (Info, error)
	Fetch(ctx context.Context, url, outputTemplate string) (string, error)
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

// WithFormat overrides the download format selector.
func WithFormat(format string) Option {
	return func(c *CLI) {
		if format != "" {
			c.format = format
		}
	}
}

// CLI wraps the yt-dlp command-line downloader.
type CLI struct {
	binary string
	format string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp", format: "bestaudio/best"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

var _ Client = (*CLI)(nil)

// Probe fetches metadata for url without downloading anything.
func (c *CLI) Probe(ctx context.Context, url string) (Info, error) {
	if strings.TrimSpace(url) == "" {
		return Info{}, services.Wrap(services.ErrValidation, "download", "probe", "url required", nil)
	}

	cmd := commandContext(ctx, c.binary, "--dump-json", "--no-playlist", url) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, classifyFailure("probe", url, stderr.String(), err)
	}

	var info Info
	decoder := json.NewDecoder(&stdout)
	if err := decoder.Decode(&info); err != nil {
		return Info{}, services.Wrap(services.ErrDownload, "download", "probe", fmt.Sprintf("decode metadata for %s", url), err)
	}
	return info, nil
}

// Fetch downloads url using outputTemplate (a yt-dlp -o template ending in
// %(ext)s) and returns the path of the produced file.
func (c *CLI) Fetch(ctx context.Context, url, outputTemplate string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", services.Wrap(services.ErrValidation, "download", "fetch", "url required", nil)
	}
	if strings.TrimSpace(outputTemplate) == "" {
		return "", services.Wrap(services.ErrValidation, "download", "fetch", "output template required", nil)
	}

	args := []string{"-f", c.format, "--no-playlist", "-o", outputTemplate, url}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", classifyFailure("fetch", url, stderr.String(), err)
	}

	path, err := discoverOutput(outputTemplate)
	if err != nil {
		return "", services.Wrap(services.ErrDownload, "download", "fetch", fmt.Sprintf("locate output for %s", url), err)
	}
	return path, nil
}

// discoverOutput resolves the file a download template produced. The
// extension placeholder is only known after yt-dlp picks a format, so the
// template is globbed.
func discoverOutput(template string) (string, error) {
	pattern := strings.ReplaceAll(template, "%(ext)s", "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New("no downloaded file matches template")
	}
	sort.Strings(matches)
	return matches[0], nil
}

// classifyFailure maps downloader stderr to an error kind. Unavailable
// sources are permanent download failures; everything else may be transient.
func classifyFailure(operation, url, stderr string, err error) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "not available"),
		strings.Contains(lower, "404"):
		return services.Wrap(services.ErrDownload, "download", operation, fmt.Sprintf("source unavailable: %s", url), err)
	case detail != "":
		return services.Wrap(services.ErrDownload, "download", operation, fmt.Sprintf("%s: %s", url, firstLine(detail)), err)
	default:
		return services.Wrap(services.ErrDownload, "download", operation, url, err)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
