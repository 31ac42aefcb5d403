package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"classifier-api/internal/storage"
)

const maxImageBytes = 10 * 1024 * 1024

// ErrInvalidImage indicates the submitted image data is missing, empty, or
// not valid base64.
var ErrInvalidImage = errors.New("invalid image data")

// Classification is the external-facing result of a classify request.
type Classification struct {
	Classification  string
	Model           string
	Prompt          string
	ProcessingTime  time.Duration
	ImageSize       int
	ArchiveLocation string
}

// Service orchestrates image classification and optional archival of the
// submitted image to object storage.
type Service struct {
	classifier Classifier
	archive    storage.Service
	bucket     string
	keyPrefix  string
	logger     *logrus.Logger
}

func NewService(classifier Classifier, archive storage.Service, bucket, keyPrefix string, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		classifier: classifier,
		archive:    archive,
		bucket:     bucket,
		keyPrefix:  strings.Trim(keyPrefix, "/"),
		logger:     logger,
	}
}

// ClassifyImage validates and decodes the submitted image, runs inference,
// and archives the image if storage is configured. Archive failures do not
// fail the classification; they are logged as warnings.
func (s *Service) ClassifyImage(ctx context.Context, userID, imageBase64, prompt string) (*Classification, error) {
	imageBase64 = stripDataURLPrefix(strings.TrimSpace(imageBase64))
	if imageBase64 == "" {
		return nil, fmt.Errorf("%w: no image provided", ErrInvalidImage)
	}

	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidImage)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidImage)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, maxImageBytes)
	}

	started := time.Now()
	result, err := s.classifier.Classify(ctx, imageBase64, prompt)
	if err != nil {
		return nil, err
	}

	classification := &Classification{
		Classification: result.Classification,
		Model:          result.Model,
		Prompt:         result.Prompt,
		ProcessingTime: time.Since(started),
		ImageSize:      len(raw),
	}

	if s.archive != nil && s.bucket != "" {
		key := s.archiveKey(userID)
		location, err := s.archive.UploadImage(ctx, s.bucket, key, "application/octet-stream", raw)
		if err != nil {
			s.logger.WithField("key", key).Warnf("archive image: %v", err)
		} else {
			classification.ArchiveLocation = location
		}
	}

	return classification, nil
}

// Status reports inference backend health.
func (s *Service) Status(ctx context.Context) *Status {
	return s.classifier.Status(ctx)
}

// ListArchive returns the caller's archived images. Returns nil when
// archiving is not configured.
func (s *Service) ListArchive(ctx context.Context, userID string) ([]storage.ObjectInfo, error) {
	if s.archive == nil || s.bucket == "" {
		return nil, nil
	}
	return s.archive.ListObjects(ctx, s.bucket, s.userPrefix(userID))
}

// PurgeArchive removes every archived image belonging to the caller.
func (s *Service) PurgeArchive(ctx context.Context, userID string) error {
	if s.archive == nil || s.bucket == "" {
		return nil
	}
	return s.archive.DeletePrefix(ctx, s.bucket, s.userPrefix(userID))
}

func (s *Service) archiveKey(userID string) string {
	return fmt.Sprintf("%s/%s", s.userPrefix(userID), uuid.NewString())
}

func (s *Service) userPrefix(userID string) string {
	if s.keyPrefix == "" {
		return userID
	}
	return s.keyPrefix + "/" + userID
}

func stripDataURLPrefix(image string) string {
	if strings.HasPrefix(image, "data:image/") {
		if idx := strings.Index(image, ","); idx >= 0 {
			return image[idx+1:]
		}
	}
	return image
}
