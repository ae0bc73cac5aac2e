package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/files"
	"github.com/ebogdum/vizgate/internal/pathutil"
)

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// RemoveResponse is returned by DELETE /v1/files
type RemoveResponse struct {
	Path    string `json:"path"`
	Removed bool   `json:"removed"`
}

// V1UploadFile handles POST /v1/files
// @Summary Upload a file
// @Description Stores the multipart part "file" under "dir" as "name" plus the original extension. Large images are recompressed.
// @Tags files
// @Accept multipart/form-data
// @Param file formData file true "File content"
// @Param dir formData string false "Target directory relative to the base directory"
// @Param name formData string false "Stored file name without extension"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 413 {object} ErrorResponse "Request Entity Too Large"
// @Router /v1/files [post]
func V1UploadFile(helper *files.Helper, compressor *files.Compressor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(auth.MultipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				SendErrorResponse(w, logger, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			SendErrorResponse(w, logger, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		part, header, err := r.FormFile("file")
		if err != nil {
			SendErrorResponse(w, logger, http.StatusBadRequest, "file is required")
			return
		}
		defer part.Close()

		dir := r.FormValue("dir")
		if dir == "" {
			dir = defaultUploadDir(r)
		}
		name := r.FormValue("name")
		if name == "" {
			name = uuid.NewString()
		}

		isImage := files.IsImage(header.Filename)
		if contentType, err := files.DetectContentType(part); err == nil {
			isImage = isImage || files.IsImageContent(contentType)
		}
		if _, err := part.Seek(0, io.SeekStart); err != nil {
			SendError(w, logger, fmt.Errorf("failed to rewind upload: %w", err))
			return
		}

		rel, err := helper.Upload(part, header.Filename, dir, name)
		if err != nil {
			SendError(w, logger, err)
			return
		}

		size := header.Size
		if isImage {
			abs := filepath.Join(helper.BaseDir, rel)
			if res, err := compressor.Compress(abs); err != nil {
				logger.Warn("Image compression failed, keeping original", log.Path(rel), zap.Error(err))
			} else if res.Passes > 0 {
				logger.Info("Image compressed",
					log.Path(rel),
					zap.Int64("original_size", res.OriginalSize),
					zap.Int64("final_size", res.FinalSize),
					zap.Int("passes", res.Passes))
			}
			// a failed pass may still have rewritten the file
			if info, err := os.Stat(abs); err == nil {
				size = info.Size()
			}
		}

		SendJSONResponse(w, logger, http.StatusCreated, UploadResponse{Path: rel, Size: size})
	}
}

// V1DownloadFile handles GET /v1/files/download
// @Summary Download and discard a file
// @Description Streams the file as an attachment and removes it afterwards
// @Tags files
// @Produce application/octet-stream
// @Param path query string true "File path relative to the base directory"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Router /v1/files/download [get]
func V1DownloadFile(helper *files.Helper, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			SendErrorResponse(w, logger, http.StatusBadRequest, "path is required")
			return
		}
		if err := pathutil.ValidatePath(path); err != nil {
			SendError(w, logger, err)
			return
		}

		if err := helper.Download(w, path); err != nil {
			// once the attachment headers are out the status is already sent
			if w.Header().Get("Content-Disposition") != "" {
				logger.Error("Download interrupted", log.Path(path), zap.Error(err))
				return
			}
			SendError(w, logger, err)
		}
	}
}

// V1DeleteFile handles DELETE /v1/files
// @Summary Remove a file
// @Tags files
// @Param path query string true "File path relative to the base directory"
// @Success 200 {object} RemoveResponse
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Router /v1/files [delete]
func V1DeleteFile(helper *files.Helper, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			SendErrorResponse(w, logger, http.StatusBadRequest, "path is required")
			return
		}
		if err := pathutil.ValidatePath(path); err != nil {
			SendError(w, logger, err)
			return
		}

		removed, err := helper.Remove(path)
		if err != nil {
			SendError(w, logger, err)
			return
		}
		SendJSONResponse(w, logger, http.StatusOK, RemoveResponse{Path: path, Removed: removed})
	}
}

// defaultUploadDir places uploads without a dir under the calling platform
func defaultUploadDir(r *http.Request) string {
	if platform, ok := auth.PlatformFromContext(r.Context()); ok {
		return fmt.Sprintf("/uploads/%d", platform.ID)
	}
	return "/uploads"
}

