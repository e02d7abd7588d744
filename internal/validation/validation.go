// Package validation checks submitted inputs against configured limits
// before a job is accepted.
package validation

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"stemd/internal/config"
	"stemd/internal/services"
)

// CheckExtension verifies the file carries one of the allowed audio
// extensions.
func CheckExtension(path string, formats []string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return services.Wrap(services.ErrValidation, "validation", "extension", fmt.Sprintf("%s has no file extension", filepath.Base(path)), nil)
	}
	for _, allowed := range formats {
		if ext == allowed {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, "validation", "extension", fmt.Sprintf("unsupported format %q (allowed: %s)", ext, strings.Join(formats, ", ")), nil)
}

// CheckFileSize verifies the file exists and does not exceed the size limit.
// A limit <= 0 disables the check.
func CheckFileSize(path string, limit int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "validation", "file size", fmt.Sprintf("stat %s", path), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "validation", "file size", fmt.Sprintf("%s is a directory", path), nil)
	}
	if limit > 0 && info.Size() > limit {
		return services.Wrap(services.ErrValidation, "validation", "file size", fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), limit), nil)
	}
	return nil
}

// CheckDuration verifies the measured duration fits the limit. A limit <= 0
// disables the check.
func CheckDuration(seconds float64, limit int) error {
	if seconds <= 0 {
		return services.Wrap(services.ErrValidation, "validation", "duration", "could not determine audio duration", nil)
	}
	if limit > 0 && seconds > float64(limit) {
		return services.Wrap(services.ErrValidation, "validation", "duration", fmt.Sprintf("audio is %.0fs, limit is %ds", seconds, limit), nil)
	}
	return nil
}

// CheckURL verifies the remote source is an absolute http or https URL.
func CheckURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return services.Wrap(services.ErrValidation, "validation", "url", fmt.Sprintf("parse %q", raw), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrValidation, "validation", "url", fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrValidation, "validation", "url", "missing host", nil)
	}
	return nil
}

// CheckFileInput runs the extension and size checks a file submission must
// pass before a job record is created. Duration is checked later, once the
// pipeline has probed the file.
func CheckFileInput(path string, limits config.Limits) error {
	if err := CheckExtension(path, limits.Formats); err != nil {
		return err
	}
	return CheckFileSize(path, limits.MaxFileSizeBytes)
}
