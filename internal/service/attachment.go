package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/observability"
)

const (
	defaultAttachmentMaxBytes = 10 * 1024 * 1024
	maxAttachmentsPerDraft    = 20
)

var (
	// ErrAttachmentTooLarge indicates the payload exceeded the configured limit.
	ErrAttachmentTooLarge = apperror.BadRequest("", "attachment exceeds maximum allowed size")
	// ErrAttachmentTypeNotAllowed indicates the MIME type is not permitted.
	ErrAttachmentTypeNotAllowed = apperror.BadRequest("", "attachment type not allowed")
	// ErrAttachmentScanFailed indicates the archive could not be inspected safely.
	ErrAttachmentScanFailed = apperror.BadRequest("", "attachment failed validation")
	// ErrUploadsDisabled is returned when no file storage is configured.
	ErrUploadsDisabled = errors.New("attachment uploads are not configured")
)

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// attachment is a validated upload ready to hand to a FileUploader.
type attachment struct {
	name     string
	mimeType string
	payload  []byte
}

// readAttachment enforces size, type and archive limits on an uploaded file.
func readAttachment(file *multipart.FileHeader, maxBytes int64) (attachment, error) {
	if file == nil {
		return attachment{}, apperror.BadRequest("", "file is required")
	}
	if maxBytes <= 0 {
		maxBytes = defaultAttachmentMaxBytes
	}
	if file.Size > maxBytes {
		observability.Attachments().WithLabelValues("size").Inc()
		return attachment{}, ErrAttachmentTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return attachment{}, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxBytes+1)); err != nil {
		return attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(buf.Len()) > maxBytes {
		observability.Attachments().WithLabelValues("size").Inc()
		return attachment{}, ErrAttachmentTooLarge
	}

	detected := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	if !isAllowedAttachment(detected) {
		observability.Attachments().WithLabelValues("type").Inc()
		return attachment{}, ErrAttachmentTypeNotAllowed
	}

	if err := scanArchive(buf.Bytes(), detected, maxBytes); err != nil {
		observability.Attachments().WithLabelValues("scan").Inc()
		return attachment{}, err
	}

	return attachment{
		name:     sanitizeFileName(file.Filename),
		mimeType: detected,
		payload:  buf.Bytes(),
	}, nil
}

func scanArchive(payload []byte, mime string, maxBytes int64) error {
	if mime != "application/zip" {
		return nil
	}
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrAttachmentScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(maxBytes*20) {
			return ErrAttachmentScanFailed
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if strings.HasPrefix(lower, "image/") {
		return "image"
	}
	switch lower {
	case "application/zip", "application/x-zip-compressed":
		return "application/zip"
	default:
		return lower
	}
}

func isAllowedAttachment(m string) bool {
	switch m {
	case "image", "application/pdf", "application/zip", "text/plain",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return true
	default:
		return false
	}
}
