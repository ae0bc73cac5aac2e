package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/backends"
	"github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/files"
	"github.com/ebogdum/vizgate/internal/pathutil"
	"github.com/ebogdum/vizgate/metrics"
)

// ArchiveRequest lists the files to bundle
type ArchiveRequest struct {
	Paths  []string `json:"paths"`
	Action string   `json:"action,omitempty"` // "download" (default), "share" or "email"
}

// ArchiveResponse points at the created archive
type ArchiveResponse struct {
	Path     string `json:"path"`
	Mirrored bool   `json:"mirrored"`
}

var archiveActions = map[string]files.Action{
	"":         files.ActionDownload,
	"download": files.ActionDownload,
	"share":    files.ActionShareDownload,
	"email":    files.ActionMail,
}

// V1CreateArchive handles POST /v1/files/archive
// @Summary Bundle files into a zip export
// @Description Zips the listed files into a new export path and mirrors the archive to the configured sink
// @Tags files
// @Accept json
// @Param request body ArchiveRequest true "Files to archive"
// @Success 201 {object} ArchiveResponse
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Router /v1/files/archive [post]
func V1CreateArchive(helper *files.Helper, sink backends.Sink, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ArchiveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Paths) == 0 {
			SendErrorResponse(w, logger, http.StatusBadRequest, "paths are required")
			return
		}
		for _, p := range req.Paths {
			if err := pathutil.ValidatePath(p); err != nil {
				SendError(w, logger, err)
				return
			}
		}

		action, ok := archiveActions[req.Action]
		if !ok {
			SendErrorResponse(w, logger, http.StatusBadRequest, "unknown action")
			return
		}

		id := ""
		if action == files.ActionDownload {
			id = requesterID(r)
		}
		target, err := helper.ExportPath(files.TypeZip, action, id)
		if err != nil {
			SendError(w, logger, err)
			return
		}

		archive, err := helper.Zip(req.Paths, target)
		if err != nil {
			SendError(w, logger, err)
			return
		}

		rel := helper.FormatFilePath(archive)
		mirrored := mirror(r, sink, archive, rel, logger)

		SendJSONResponse(w, logger, http.StatusCreated, ArchiveResponse{Path: rel, Mirrored: mirrored})
	}
}

// mirror copies the archive to the sink. Failures are logged and reported as
// not mirrored; the local archive stays authoritative.
func mirror(r *http.Request, sink backends.Sink, abs, key string, logger *zap.Logger) bool {
	f, err := os.Open(abs)
	if err != nil {
		logger.Error("Failed to open archive for mirroring", log.Path(abs), zap.Error(err))
		metrics.ExportSinkOpsTotal.WithLabelValues(sink.Name(), "failure").Inc()
		return false
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	if err := sink.Put(r.Context(), key, f, size); err != nil {
		logger.Error("Failed to mirror archive",
			zap.String("sink", sink.Name()), log.Path(key), zap.Error(err))
		metrics.ExportSinkOpsTotal.WithLabelValues(sink.Name(), "failure").Inc()
		metrics.ErrorsTotal.WithLabelValues("export", "sink_put").Inc()
		return false
	}
	metrics.ExportSinkOpsTotal.WithLabelValues(sink.Name(), "success").Inc()
	return true
}

// requesterID names download exports after the user, or the platform when the
// request carried no user.
func requesterID(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return strconv.FormatInt(user.ID, 10)
	}
	if platform, ok := auth.PlatformFromContext(r.Context()); ok {
		return strconv.FormatInt(platform.ID, 10)
	}
	return ""
}
