// Package archive assembles selected content entries into a single zip
// archive through a streaming append: one entry's content is in flight at a
// time, never the whole decompressed set.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"igvault/pkg/logger"
	"igvault/pkg/models"
)

// ErrEntry marks a failure while adding a single entry. Entry failures
// abort the whole assembly; a partial archive is never delivered.
var ErrEntry = errors.New("archive: entry failed")

// Options control member naming.
type Options struct {
	// ReplaceJpegWithJpg normalizes a derived "jpeg" extension to "jpg".
	ReplaceJpegWithJpg bool
}

// Assembler writes archives entry by entry onto a single append-only
// stream.
type Assembler struct {
	opts Options
}

func New(opts Options) *Assembler {
	return &Assembler{opts: opts}
}

// MemberName derives the archive member name for an entry. The caption
// sentinel keeps its literal name; everything else gets an extension from
// the declared MIME type (substring after the last '/', defaulting to jpg),
// optionally normalized jpeg->jpg.
func (a *Assembler) MemberName(e models.ArchiveEntry) string {
	if e.Filename == models.CaptionFilename {
		return e.Filename
	}
	ext := ""
	if i := strings.LastIndex(e.MimeType, "/"); i >= 0 {
		ext = e.MimeType[i+1:]
	}
	if ext == "" {
		ext = "jpg"
	}
	if a.opts.ReplaceJpegWithJpg {
		ext = strings.Replace(ext, "jpeg", "jpg", 1)
	}
	return e.Filename + "." + ext
}

// Assemble streams the entries, in input order, into a zip archive written
// to w. The caption sentinel is stored uncompressed as text; binary entries
// are deflated. Any entry failure aborts the assembly and the error is
// returned; the caller must discard whatever was written.
func (a *Assembler) Assemble(entries []models.ArchiveEntry, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := a.add(zw, e); err != nil {
			_ = zw.Close()
			return fmt.Errorf("%w: %q: %v", ErrEntry, e.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (a *Assembler) add(zw *zip.Writer, e models.ArchiveEntry) error {
	if e.Filename == "" {
		return errors.New("empty filename")
	}
	if e.Filename == models.CaptionFilename {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.Filename, Method: zip.Store})
		if err != nil {
			return err
		}
		_, err = io.WriteString(fw, e.Text)
		return err
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: a.MemberName(e), Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = fw.Write(e.Content)
	return err
}

// AssembleToFile writes the archive into a fresh file under dir and returns
// its path. On any failure the partial file is removed before the error is
// returned.
func (a *Assembler) AssembleToFile(entries []models.ArchiveEntry, dir, name string) (string, error) {
	f, err := os.CreateTemp(dir, name+"-*.zip.partial")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := a.Assemble(entries, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	final := filepath.Join(dir, name+".zip")
	if err := os.Rename(path, final); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	logger.Info("archive_assembled", "path", final, "entries", len(entries))
	return final, nil
}
