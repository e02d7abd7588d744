// Package deps reports availability of the external binaries stemd shells
// out to: the separation interpreter, the downloader, and ffprobe.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"stemd/internal/config"
)

// Requirement names an external binary stemd depends on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports whether a requirement resolves on PATH.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured setup needs.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Separation engine",
			Command:     cfg.Separation.Binary,
			Description: "Python interpreter running demucs",
		},
		{
			Name:        "Downloader",
			Command:     cfg.Download.Binary,
			Description: "yt-dlp for remote sources",
		},
		{
			Name:        "ffprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Media inspection",
		},
	}
}

// Check resolves each requirement on PATH and reports availability.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: req.Description,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
