package files

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileType is the kind of export file a path is built for
type FileType struct {
	Name string
	Ext  string
}

var (
	TypeCSV   = FileType{Name: "csv", Ext: ".csv"}
	TypeXLSX  = FileType{Name: "xlsx", Ext: ".xlsx"}
	TypeXLS   = FileType{Name: "xls", Ext: ".xls"}
	TypeImage = FileType{Name: "image", Ext: ".png"}
	TypePDF   = FileType{Name: "pdf", Ext: ".pdf"}
	TypeZip   = FileType{Name: "zip", Ext: ".zip"}
)

// Action selects the directory an export path is placed under
type Action int

const (
	ActionDownload Action = iota
	ActionShareDownload
	ActionMail
)

func (a Action) dir() string {
	switch a {
	case ActionShareDownload:
		return "share/download"
	case ActionMail:
		return "email"
	default:
		return "download"
	}
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImage reports whether name has an image extension
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// IsCSV reports whether name has a csv extension
func IsCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), TypeCSV.Ext)
}

// IsExcel reports whether name has an xlsx or xls extension
func IsExcel(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, TypeXLSX.Ext) || strings.HasSuffix(lower, TypeXLS.Ext)
}

// DetectContentType sniffs the MIME type of r from its leading bytes
func DetectContentType(r io.Reader) (string, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	return m.String(), nil
}

// IsImageContent reports whether a sniffed MIME type is an image the compressor can decode
func IsImageContent(contentType string) bool {
	m := mimetype.Lookup(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if m == nil {
		return false
	}
	for _, supported := range []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/webp"} {
		if m.Is(supported) {
			return true
		}
	}
	return false
}
