package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLocalEnv(t *testing.T) {
	t.Helper()
	// Run from a temp dir so a developer's .env is not picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("PUBLISH_TARGET", "local")
	t.Setenv("TTS_PROVIDER", "google")
}

func TestLoadDefaults(t *testing.T) {
	setLocalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.MinDurationSec)
	assert.Equal(t, 60.0, cfg.MaxDurationSec)
	assert.Equal(t, PolicyAbort, cfg.PartialFailure)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "28", cfg.CategoryID)

	require.Len(t, cfg.Channels, 1)
	ch := cfg.Channels[0]
	assert.Equal(t, "TechFatafat", ch.Name)
	assert.Equal(t, "india", ch.Region)
	assert.Equal(t, []string{"hi", "en"}, ch.Languages())
	assert.Equal(t, DefaultFallbackTopics, ch.FallbackTopics)
	assert.Equal(t, "co.in", ch.Accent("en"))
	assert.Equal(t, "com", ch.Accent("fr"))
}

func TestLoadRequiresPublishCredentials(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("PUBLISH_TARGET", "youtube")

	_, err := Load()
	assert.ErrorContains(t, err, "YOUTUBE_CREDENTIALS")

	t.Setenv("PUBLISH_TARGET", "supabase")
	_, err = Load()
	assert.ErrorContains(t, err, "SUPABASE_URL")
}

func TestLoadRejectsBadPolicyAndWindow(t *testing.T) {
	setLocalEnv(t)

	t.Setenv("PARTIAL_FAILURE_POLICY", "retry")
	_, err := Load()
	assert.ErrorContains(t, err, "PARTIAL_FAILURE_POLICY")

	t.Setenv("PARTIAL_FAILURE_POLICY", "silence")
	t.Setenv("MIN_DURATION_SEC", "70")
	_, err = Load()
	assert.ErrorContains(t, err, "duration window")
}

func TestLoadVoicesFromEnv(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("TTS_VOICE_HI", "hi-voice")

	cfg, err := Load()
	require.NoError(t, err)

	ch, ok := cfg.Channel("techfatafat")
	require.True(t, ok)
	assert.Equal(t, "hi-voice", ch.Voice("hi"))
	assert.Equal(t, "", ch.Voice("en"))
}

func TestLoadChannelsFileMergesByName(t *testing.T) {
	setLocalEnv(t)

	path := filepath.Join(t.TempDir(), "channels.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[channel]]
name = "TechFatafat"
region = "united_states"
fallback_topics = ["AI Roundup"]

[[channel]]
name = "GadgetGuru"
primary_language = "ar"
classifier = "unicode-script"
schedule = "0 9 * * *"

[channel.voices]
ar = "ar-voice"
`), 0644))
	t.Setenv("CHANNELS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 2)

	first, ok := cfg.Channel("")
	require.True(t, ok)
	assert.Equal(t, "united_states", first.Region)
	assert.Equal(t, []string{"AI Roundup"}, first.FallbackTopics)

	second, ok := cfg.Channel("GadgetGuru")
	require.True(t, ok)
	assert.Equal(t, []string{"ar", "en"}, second.Languages())
	assert.Equal(t, ClassifierUnicodeScript, second.Classifier)
	assert.Equal(t, "ar-voice", second.Voice("ar"))
	assert.Equal(t, "0 9 * * *", second.Schedule)
	assert.Equal(t, DefaultScriptTemplate, second.ScriptTemplate)

	_, ok = cfg.Channel("missing")
	assert.False(t, ok)
}

func TestLoadChannelsRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[channel]]
name = "X"
regoin = "india"
`), 0644))

	_, err := LoadChannels(path)
	assert.ErrorContains(t, err, "unknown keys")
}

func TestChannelValidateTemplate(t *testing.T) {
	ch := Channel{Name: "X", ScriptTemplate: "Hello there"}.withDefaults()
	assert.ErrorContains(t, ch.Validate(), "{topic}")
}
