package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ja38055/TechFataFat/internal/logger"
	"go.uber.org/zap"
)

// ImageProvider returns raw image bytes (any format image.Decode understands)
// illustrating a topic.
type ImageProvider interface {
	Name() string
	FetchImage(ctx context.Context, topic string) ([]byte, error)
}

// maxImageBytes caps downloads so a bad redirect cannot fill the disk.
const maxImageBytes = 20 << 20

// ---------------------------------------------------------------------------
// Pexels stock photo search
// ---------------------------------------------------------------------------

const pexelsBaseURL = "https://api.pexels.com"

type PexelsService struct {
	client *resty.Client
	log    *zap.Logger
}

var _ ImageProvider = (*PexelsService)(nil)

func NewPexelsService(apiKey string, timeout time.Duration, log *zap.Logger) *PexelsService {
	return &PexelsService{
		client: resty.New().
			SetBaseURL(pexelsBaseURL).
			SetTimeout(timeout).
			SetHeader("Authorization", apiKey),
		log: logger.Named(log, "pexels"),
	}
}

// WithBaseURL overrides the API host.
func (s *PexelsService) WithBaseURL(baseURL string) *PexelsService {
	s.client.SetBaseURL(baseURL)
	return s
}

func (s *PexelsService) Name() string { return "pexels" }

type pexelsSearchResponse struct {
	Photos []struct {
		ID  int `json:"id"`
		Src struct {
			Original string `json:"original"`
			Portrait string `json:"portrait"`
			Large2x  string `json:"large2x"`
		} `json:"src"`
	} `json:"photos"`
}

// FetchImage searches for a portrait photo and downloads the first hit.
func (s *PexelsService) FetchImage(ctx context.Context, topic string) ([]byte, error) {
	var result pexelsSearchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":       topic,
			"orientation": "portrait",
			"per_page":    "1",
		}).
		SetResult(&result).
		Get("/v1/search")
	if err != nil {
		return nil, fmt.Errorf("pexels search failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pexels returned status %d", resp.StatusCode())
	}
	if len(result.Photos) == 0 {
		return nil, fmt.Errorf("pexels: no photos for %q", topic)
	}

	src := result.Photos[0].Src
	link := src.Portrait
	if link == "" {
		link = src.Large2x
	}
	if link == "" {
		link = src.Original
	}
	if link == "" {
		return nil, fmt.Errorf("pexels: photo %d has no source url", result.Photos[0].ID)
	}

	s.log.Debug("downloading photo", zap.Int("id", result.Photos[0].ID))
	return downloadImage(ctx, s.client, link)
}

// ---------------------------------------------------------------------------
// Pollinations: keyless prompt-to-image endpoint
// ---------------------------------------------------------------------------

const pollinationsBaseURL = "https://image.pollinations.ai"

type PollinationsService struct {
	client  *resty.Client
	baseURL string
	width   int
	height  int
}

var _ ImageProvider = (*PollinationsService)(nil)

func NewPollinationsService(width, height int, timeout time.Duration) *PollinationsService {
	return &PollinationsService{
		client:  resty.New().SetTimeout(timeout),
		baseURL: pollinationsBaseURL,
		width:   width,
		height:  height,
	}
}

// WithBaseURL overrides the API host.
func (s *PollinationsService) WithBaseURL(baseURL string) *PollinationsService {
	s.baseURL = baseURL
	return s
}

func (s *PollinationsService) Name() string { return "pollinations" }

func (s *PollinationsService) FetchImage(ctx context.Context, topic string) ([]byte, error) {
	prompt := "modern technology illustration, no text, " + topic
	link := s.baseURL + "/prompt/" + url.PathEscape(prompt)

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"width":   strconv.Itoa(s.width),
			"height":  strconv.Itoa(s.height),
			"nologo":  "true",
			"private": "true",
		}).
		Get(link)
	if err != nil {
		return nil, fmt.Errorf("pollinations request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pollinations returned status %d", resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("pollinations returned an empty body")
	}
	return resp.Body(), nil
}

func downloadImage(ctx context.Context, client *resty.Client, link string) ([]byte, error) {
	resp, err := client.R().SetContext(ctx).Get(link)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("image download returned an empty body")
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("image is %d bytes, limit %d", len(body), maxImageBytes)
	}
	return body, nil
}
