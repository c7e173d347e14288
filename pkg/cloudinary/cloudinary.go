package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores submission attachments in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends the attachment to Cloudinary and returns its secure URL.
// Names may carry a path prefix such as "assignments/12/students/4/report.pdf";
// the prefix becomes a sub-folder.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	folder, publicID := s.Location(name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected attachment: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("folder", folder).Msg("attachment uploaded to cloudinary")

	return result.SecureURL, nil
}

// Location splits a logical attachment name into the Cloudinary folder and public id.
func (s *Service) Location(name string) (string, string) {
	name = strings.Trim(filepath.ToSlash(name), "/")
	dir, file := filepath.Split(name)

	segments := []string{}
	if s.folder != "" {
		segments = append(segments, s.folder)
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if cleaned := slug(part); cleaned != "" {
			segments = append(segments, cleaned)
		}
	}

	return strings.Join(segments, "/"), buildPublicID(file)
}

func buildPublicID(name string) string {
	base := slug(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "attachment"
	}

	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}

func slug(value string) string {
	value = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, value)

	return strings.Trim(value, "-")
}
