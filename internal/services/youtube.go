package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ---------------------------------------------------------------------------
// YouTube Data API upload
// ---------------------------------------------------------------------------

const (
	youTubeUploadScope  = "https://www.googleapis.com/auth/youtube.upload"
	defaultTokenURI     = "https://oauth2.googleapis.com/token"
	youTubeTitleMaxLen  = 100
	youTubeDescMaxBytes = 5000
)

// YouTubeCredentials is the authorized-user bundle written by the Google
// OAuth client libraries.
type YouTubeCredentials struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry,omitempty"`
}

// LoadYouTubeCredentials accepts either the JSON document itself or a path to
// a file containing it.
func LoadYouTubeCredentials(value string) (*YouTubeCredentials, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("youtube credentials are empty")
	}
	raw := []byte(value)
	if !strings.HasPrefix(value, "{") {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read youtube credentials file: %w", err)
		}
		raw = data
	}
	return ParseYouTubeCredentials(raw)
}

func ParseYouTubeCredentials(raw []byte) (*YouTubeCredentials, error) {
	var creds YouTubeCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("invalid youtube credentials json: %w", err)
	}
	if creds.RefreshToken == "" && creds.Token == "" {
		return nil, fmt.Errorf("youtube credentials need a token or refresh_token")
	}
	if creds.RefreshToken != "" && (creds.ClientID == "" || creds.ClientSecret == "") {
		return nil, fmt.Errorf("youtube credentials with a refresh_token need client_id and client_secret")
	}
	if creds.TokenURI == "" {
		creds.TokenURI = defaultTokenURI
	}
	if len(creds.Scopes) == 0 {
		creds.Scopes = []string{youTubeUploadScope}
	}
	return &creds, nil
}

// TokenSource returns a refreshing token source for the bundle.
func (c *YouTubeCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURI},
		Scopes:       c.Scopes,
	}
	tok := &oauth2.Token{
		AccessToken:  c.Token,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	if c.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, c.Expiry); err == nil {
			tok.Expiry = t
		}
	}
	if c.Token == "" {
		// Force a refresh on first use.
		tok.Expiry = time.Unix(1, 0)
	}
	return cfg.TokenSource(ctx, tok)
}

type YouTubeService struct {
	creds    *YouTubeCredentials
	endpoint string
	log      *zap.Logger
}

func NewYouTubeService(creds *YouTubeCredentials, log *zap.Logger) *YouTubeService {
	return &YouTubeService{
		creds: creds,
		log:   logger.Named(log, "youtube"),
	}
}

// WithEndpoint overrides the API base path.
func (s *YouTubeService) WithEndpoint(endpoint string) *YouTubeService {
	s.endpoint = endpoint
	return s
}

func (s *YouTubeService) Name() string { return "youtube" }

// Publish uploads the artifact and returns the new video ID.
func (s *YouTubeService) Publish(ctx context.Context, artifact models.Artifact) (string, error) {
	opts := []option.ClientOption{option.WithTokenSource(s.creds.TokenSource(ctx))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create youtube client: %w", err)
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	video := buildYouTubeVideo(artifact.Metadata)

	s.log.Info("uploading short",
		zap.String("title", video.Snippet.Title),
		zap.String("visibility", video.Status.PrivacyStatus))

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload failed: %w", err)
	}
	if resp.Id == "" {
		return "", fmt.Errorf("youtube upload returned no video id")
	}

	s.log.Info("short uploaded", zap.String("video_id", resp.Id))
	return resp.Id, nil
}

func buildYouTubeVideo(meta models.Metadata) *youtube.Video {
	visibility := meta.Visibility
	if visibility == "" {
		visibility = "public"
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateRunes(meta.Title, youTubeTitleMaxLen),
			Description: truncateString(meta.Description, youTubeDescMaxBytes),
			CategoryId:  meta.CategoryID,
			Tags:        meta.Tags,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           visibility,
			SelfDeclaredMadeForKids: false,
		},
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
