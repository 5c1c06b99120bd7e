// Package sink holds the outbound collaborator boundaries: the download
// sink that persists a finished archive as a user-visible file, and the
// navigator that asks the host to open a URL.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"igvault/pkg/logger"
)

// Sink delivers a finished archive. Implementations take ownership of the
// source file and must remove it after use (the release-after-download
// contract).
type Sink interface {
	Deliver(srcPath, filename string) error
}

// Navigator asks the host to open a URL in a new view adjacent to the
// requesting one. Fire-and-forget; no store mutation, no acknowledgment.
type Navigator interface {
	OpenURL(url string, insertAtIndex int) error
}

// FileSink moves archives into a downloads directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Deliver(srcPath, filename string) error {
	if s.Dir == "" {
		return fmt.Errorf("download dir not configured")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(s.Dir, filepath.Base(filename))
	if err := os.Rename(srcPath, dst); err != nil {
		// fall back to copy for cross-device moves
		b, rerr := os.ReadFile(srcPath)
		if rerr != nil {
			return err
		}
		if werr := os.WriteFile(dst, b, 0o644); werr != nil {
			return werr
		}
		_ = os.Remove(srcPath)
	}
	logger.Info("archive_delivered", "path", dst)
	return nil
}

// LogNavigator is the default Navigator: the host view layer is external,
// so navigation requests are only recorded.
type LogNavigator struct{}

func (LogNavigator) OpenURL(url string, insertAtIndex int) error {
	logger.Info("open_url_requested", "url", url, "index", insertAtIndex)
	return nil
}
