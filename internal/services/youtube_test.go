package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCreds = `{
  "token": "ya29.access",
  "refresh_token": "1//refresh",
  "token_uri": "https://oauth2.googleapis.com/token",
  "client_id": "id.apps.googleusercontent.com",
  "client_secret": "secret",
  "scopes": ["https://www.googleapis.com/auth/youtube.upload"]
}`

func TestParseYouTubeCredentials(t *testing.T) {
	creds, err := ParseYouTubeCredentials([]byte(sampleCreds))
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", creds.Token)
	assert.Equal(t, "1//refresh", creds.RefreshToken)
	assert.Equal(t, []string{youTubeUploadScope}, creds.Scopes)
}

func TestParseYouTubeCredentialsDefaults(t *testing.T) {
	creds, err := ParseYouTubeCredentials([]byte(`{"token":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, defaultTokenURI, creds.TokenURI)
	assert.Equal(t, []string{youTubeUploadScope}, creds.Scopes)
}

func TestParseYouTubeCredentialsInvalid(t *testing.T) {
	_, err := ParseYouTubeCredentials([]byte(`{`))
	assert.Error(t, err)

	_, err = ParseYouTubeCredentials([]byte(`{}`))
	assert.Error(t, err)

	_, err = ParseYouTubeCredentials([]byte(`{"refresh_token":"r"}`))
	assert.Error(t, err)
}

func TestLoadYouTubeCredentialsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCreds), 0o600))

	creds, err := LoadYouTubeCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", creds.ClientSecret)

	inline, err := LoadYouTubeCredentials(sampleCreds)
	require.NoError(t, err)
	assert.Equal(t, creds, inline)

	_, err = LoadYouTubeCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBuildYouTubeVideo(t *testing.T) {
	video := buildYouTubeVideo(models.Metadata{
		Title:       strings.Repeat("क", 120),
		Description: "Auto-generated tech short for TechFatafat",
		CategoryID:  "28",
		Tags:        []string{"tech", "shorts"},
	})

	assert.Equal(t, 100, len([]rune(video.Snippet.Title)))
	assert.Equal(t, "28", video.Snippet.CategoryId)
	assert.Equal(t, "public", video.Status.PrivacyStatus)
	assert.Equal(t, []string{"tech", "shorts"}, video.Snippet.Tags)
}

func TestBuildYouTubeVideoVisibility(t *testing.T) {
	video := buildYouTubeVideo(models.Metadata{Title: "x", Visibility: "unlisted"})
	assert.Equal(t, "unlisted", video.Status.PrivacyStatus)
}
