// Package storage archives finished shorts, either to Supabase Storage or to a
// local directory.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"go.uber.org/zap"
)

const (
	// Upload timeout per attempt; a 60s 1080x1920 short is tens of MB
	uploadTimeout = 180 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type Storage struct {
	url    string
	Bucket string
	client *resty.Client
	log    *zap.Logger
	now    func() time.Time
}

func New(url, serviceKey, bucket string, log *zap.Logger) *Storage {
	s := &Storage{
		url:    strings.TrimRight(url, "/"),
		Bucket: bucket,
		log:    logger.Named(log, "storage"),
		now:    time.Now,
	}
	// Each attempt gets its own timeout; backoff is exponential with jitter.
	s.client = resty.New().
		SetTimeout(uploadTimeout).
		SetAuthToken(serviceKey).
		SetHeader("x-upsert", "true").
		SetRetryCount(maxRetries).
		SetRetryWaitTime(baseRetryDelay).
		SetRetryMaxWaitTime(maxRetryDelay).
		AddRetryCondition(s.shouldRetry)
	return s
}

func (s *Storage) Name() string { return "supabase" }

// Publish uploads the short and a JSON sidecar with its metadata. The remote
// identifier is the object path of the video inside the bucket.
func (s *Storage) Publish(ctx context.Context, artifact models.Artifact) (string, error) {
	base := ObjectPath(artifact.Metadata.Channel, s.now(), uuid.New())

	if err := s.UploadFile(ctx, base+".mp4", artifact.Path, "video/mp4"); err != nil {
		return "", err
	}

	sidecar, err := json.MarshalIndent(artifact.Metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := s.Upload(ctx, base+".json", sidecar, "application/json"); err != nil {
		// The video is archived; a missing sidecar is not worth failing the run.
		s.log.Warn("metadata sidecar upload failed", zap.String("path", base+".json"), zap.Error(err))
	}

	s.log.Info("short archived", zap.String("path", base+".mp4"), zap.String("url", s.GetPublicURL(base+".mp4")))
	return base + ".mp4", nil
}

// Upload PUTs data to Supabase Storage, overwriting any existing object.
// Network errors and 408/429/5xx gateway statuses are retried.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Put(fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath))
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
}

// shouldRetry is the resty retry condition for uploads.
func (s *Storage) shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		retry := isRetryableError(err)
		if retry {
			s.log.Warn("upload attempt failed, retrying", zap.Error(err))
		}
		return retry
	}
	if resp == nil || !isRetryableStatus(resp.StatusCode()) {
		return false
	}
	s.log.Warn("upload attempt returned retryable status, retrying",
		zap.Int("status", resp.StatusCode()),
		zap.String("body", truncate(resp.String(), 200)))
	return true
}

// UploadFile uploads a file from a local path
func (s *Storage) UploadFile(ctx context.Context, objectPath, localPath string, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Upload(ctx, objectPath, data, contentType)
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// ObjectPath lays archived shorts out as <channel>/<yyyy-mm-dd>/<id>.
func ObjectPath(channel string, at time.Time, id uuid.UUID) string {
	return path.Join(Slug(channel), at.UTC().Format("2006-01-02"), id.String())
}

// Slug lowercases name and replaces every run of non-alphanumerics with a
// single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "default"
	}
	return slug
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
