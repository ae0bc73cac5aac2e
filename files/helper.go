// Package files stores, serves and packages report export files under a
// configured base directory.
//
// Writes to the same destination path are not coordinated: when two requests
// target one path, the last writer wins.
package files

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/internal/pathutil"
	"github.com/ebogdum/vizgate/metrics"
)

var (
	// ErrNotFound is returned when a file does not exist
	ErrNotFound = errors.New("file not found")
	// ErrOutsideBase is returned for paths escaping the base directory
	ErrOutsideBase = pathutil.ErrOutsideBase
)

var repeatedSeparators = regexp.MustCompile(`/{2,}`)

// Helper performs file operations relative to BaseDir
type Helper struct {
	BaseDir string

	logger *zap.Logger
	now    func() time.Time
}

// NewHelper creates a helper rooted at baseDir
func NewHelper(baseDir string, logger *zap.Logger) *Helper {
	return &Helper{
		BaseDir: filepath.Clean(baseDir),
		logger:  logger,
		now:     time.Now,
	}
}

// Upload stores src under dir as fileName plus the extension of originalName and
// returns the base-relative path of the stored file.
func (h *Helper) Upload(src io.Reader, originalName, dir, fileName string) (string, error) {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	relPath := dir + fileName + filepath.Ext(originalName)

	dest, err := pathutil.SafeJoin(h.BaseDir, relPath)
	if err != nil {
		observe("upload", err)
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		observe("upload", err)
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		observe("upload", err)
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, src)
	if err != nil {
		observe("upload", err)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	h.logger.Debug("File uploaded", log.Path(relPath), zap.Int64("size", written))
	observe("upload", nil)
	return relPath, nil
}

// Download streams the file at path to w as an attachment and removes it
// afterwards, whether or not streaming succeeded. An empty path is a no-op.
func (h *Helper) Download(w http.ResponseWriter, path string) error {
	if path == "" {
		return nil
	}

	abs, err := h.resolve(path)
	if err != nil {
		observe("download", err)
		return err
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			observe("download", ErrNotFound)
			return ErrNotFound
		}
		observe("download", err)
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		f.Close()
		if _, err := h.removeAbs(abs); err != nil {
			h.logger.Warn("Failed to remove downloaded file", log.Path(abs), zap.Error(err))
		}
	}()

	info, err := f.Stat()
	if err != nil {
		observe("download", err)
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		observe("download", ErrNotFound)
		return ErrNotFound
	}

	w.Header().Set("Content-Disposition", "attachment;filename="+info.Name())
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Type", "application/octet-stream;charset=UTF-8")

	if _, err := io.Copy(w, f); err != nil {
		observe("download", err)
		return fmt.Errorf("failed to stream file: %w", err)
	}

	observe("download", nil)
	return nil
}

// Remove deletes the regular file at path. It reports false without an error
// when the path is missing or is not a regular file.
func (h *Helper) Remove(path string) (bool, error) {
	abs, err := h.resolve(path)
	if err != nil {
		observe("remove", err)
		return false, err
	}
	removed, err := h.removeAbs(abs)
	observe("remove", err)
	return removed, err
}

func (h *Helper) removeAbs(abs string) (bool, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if err := os.Remove(abs); err != nil {
		return false, fmt.Errorf("failed to remove file: %w", err)
	}
	return true, nil
}

// DeleteDir removes dir and everything below it
func (h *Helper) DeleteDir(dir string) error {
	abs, err := h.resolve(dir)
	if err != nil {
		return err
	}
	if abs == h.BaseDir {
		return fmt.Errorf("refusing to delete base directory: %w", ErrOutsideBase)
	}
	if err := os.RemoveAll(abs); err != nil {
		observe("delete_dir", err)
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	observe("delete_dir", nil)
	return nil
}

// Delete removes the regular file at an absolute path, reporting false when
// there is nothing to delete.
func Delete(abs string) (bool, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if err := os.Remove(abs); err != nil {
		return false, err
	}
	return true, nil
}

// Copy copies src to dst and returns the number of bytes copied
func Copy(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("failed to copy file: %w", err)
	}
	return n, nil
}

// FormatFilePath strips the base directory from p and collapses repeated separators
func (h *Helper) FormatFilePath(p string) string {
	if p == "" {
		return ""
	}
	return repeatedSeparators.ReplaceAllString(strings.ReplaceAll(p, h.BaseDir, ""), "/")
}

// Zip writes every file into target, one entry per file named by its base name
func Zip(paths []string, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, p := range paths {
		if err := addZipEntry(zw, p); err != nil {
			zw.Close()
			os.Remove(target)
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

func addZipEntry(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", info.Name(), err)
	}
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", info.Name(), err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", info.Name(), err)
	}
	return nil
}

// Zip archives base-relative paths into a base-relative target
func (h *Helper) Zip(paths []string, target string) (string, error) {
	absPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := h.resolve(p)
		if err != nil {
			observe("zip", err)
			return "", err
		}
		absPaths = append(absPaths, abs)
	}

	absTarget, err := h.resolve(target)
	if err != nil {
		observe("zip", err)
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(absTarget), 0o755); err != nil {
		observe("zip", err)
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := Zip(absPaths, absTarget); err != nil {
		observe("zip", err)
		return "", err
	}
	observe("zip", nil)
	return absTarget, nil
}

// ExportPath builds and prepares the absolute path of a new export file:
// <base>/<action dir>/<yyyyMMdd>/<type>/<id>_<millis><ext>. Download exports are
// named by the requesting entity id; share downloads and mails fall back to a
// random identifier when id is empty.
func (h *Helper) ExportPath(t FileType, action Action, id string) (string, error) {
	now := h.now()
	dir := filepath.Join(h.BaseDir, action.dir(), now.Format("20060102"), t.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	if id == "" {
		id = uuid.NewString()
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", id, now.UnixMilli(), t.Ext)), nil
}

// resolve maps a base-relative path, or an absolute path already under the
// base directory, to an absolute path.
func (h *Helper) resolve(path string) (string, error) {
	if pathutil.Within(h.BaseDir, path) && filepath.IsAbs(path) {
		return pathutil.SafeJoin(h.BaseDir, strings.TrimPrefix(filepath.Clean(path), h.BaseDir))
	}
	return pathutil.SafeJoin(h.BaseDir, path)
}

func observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.FileOperationsTotal.WithLabelValues(operation, status).Inc()
}
