// Package download wraps the yt-dlp command-line downloader used to acquire
// remote audio sources. Probe returns metadata without downloading so limits
// can be enforced before any bytes move; Fetch performs the download and
// resolves the produced file from the output template.
package download
