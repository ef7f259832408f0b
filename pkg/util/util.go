// Package util holds small filesystem and string helpers shared by the
// pipeline stages.
package util

import (
	"io"
	"os"
	"regexp"
	"strings"
)

// FileExists reports whether path exists, is a regular file, and is non-empty.
// A zero-length file is a partial output and never counts as "already done".
func FileExists(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.Mode().IsRegular() && st.Size() > 0
}

// CopyFile copies src to dst, overwriting dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

var unsafePathChars = regexp.MustCompile(`[\\/:*?"<>|=\s]+`)

// SanitizePathName strips characters that break ffmpeg arguments or path
// handling, collapsing runs into single underscores.
func SanitizePathName(name string) string {
	cleaned := unsafePathChars.ReplaceAllString(name, "_")
	return strings.Trim(cleaned, "_")
}
