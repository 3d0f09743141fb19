package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// Classifier names accepted in channel configuration
const (
	ClassifierTwoLanguage   = "two-language"
	ClassifierUnicodeScript = "unicode-script"
)

// DefaultScriptTemplate is the spoken intro. {channel} and {topic} are
// substituted per run.
const DefaultScriptTemplate = "Hello {channel} viewers! Today's topic is {topic}."

// DefaultFallbackTopics are used when trend discovery fails or returns nothing.
var DefaultFallbackTopics = []string{"Latest Tech Updates", "Tech News Update"}

// Channel describes one publishing channel. Several channels can be scheduled
// from one deployment; each run executes for exactly one channel.
type Channel struct {
	Name              string            `toml:"name"`
	Region            string            `toml:"region"`
	PrimaryLanguage   string            `toml:"primary_language"`
	SecondaryLanguage string            `toml:"secondary_language"`
	Classifier        string            `toml:"classifier"`
	Voices            map[string]string `toml:"voices"`  // language tag -> provider voice id
	Accents           map[string]string `toml:"accents"` // language tag -> Google TTS host suffix, e.g. "co.in"
	FallbackTopics    []string          `toml:"fallback_topics"`
	ScriptTemplate    string            `toml:"script_template"`
	Greeting          string            `toml:"greeting"`
	Tags              []string          `toml:"tags"`
	Schedule          string            `toml:"schedule"`
}

type channelsFile struct {
	Channels []Channel `toml:"channel"`
}

// LoadChannels reads a TOML file of [[channel]] tables. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadChannels(path string) ([]Channel, error) {
	var f channelsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channels file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in channels file %s: %v", path, undecoded)
	}

	return lo.Map(f.Channels, func(ch Channel, _ int) Channel {
		return ch.withDefaults()
	}), nil
}

// Languages returns the channel's distinct language tags, primary first.
func (c Channel) Languages() []string {
	return lo.Compact(lo.Uniq([]string{c.PrimaryLanguage, c.SecondaryLanguage}))
}

// Voice returns the configured voice for a language tag, or "".
func (c Channel) Voice(lang string) string {
	return c.Voices[lang]
}

// Accent returns the Google TTS host suffix for a language tag.
func (c Channel) Accent(lang string) string {
	if a, ok := c.Accents[lang]; ok && a != "" {
		return a
	}
	return "com"
}

func (c Channel) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("channel name is required")
	}
	if c.Region == "" {
		return fmt.Errorf("channel %s: region is required", c.Name)
	}
	if c.PrimaryLanguage == "" || c.SecondaryLanguage == "" {
		return fmt.Errorf("channel %s: primary and secondary languages are required", c.Name)
	}
	if c.Classifier != ClassifierTwoLanguage && c.Classifier != ClassifierUnicodeScript {
		return fmt.Errorf("channel %s: unknown classifier %q", c.Name, c.Classifier)
	}
	if !strings.Contains(c.ScriptTemplate, "{topic}") {
		return fmt.Errorf("channel %s: script template must contain {topic}", c.Name)
	}
	if len(c.FallbackTopics) == 0 {
		return fmt.Errorf("channel %s: at least one fallback topic is required", c.Name)
	}
	return nil
}

func (c Channel) withDefaults() Channel {
	if c.Region == "" {
		c.Region = "india"
	}
	if c.PrimaryLanguage == "" {
		c.PrimaryLanguage = "hi"
	}
	if c.SecondaryLanguage == "" {
		c.SecondaryLanguage = "en"
	}
	if c.Classifier == "" {
		c.Classifier = ClassifierTwoLanguage
	}
	if c.ScriptTemplate == "" {
		c.ScriptTemplate = DefaultScriptTemplate
	}
	if len(c.FallbackTopics) == 0 {
		c.FallbackTopics = append([]string(nil), DefaultFallbackTopics...)
	}
	if c.Accents == nil {
		c.Accents = map[string]string{"en": "co.in", "hi": "co.in"}
	}
	if c.Voices == nil {
		c.Voices = map[string]string{}
	}
	if c.Schedule == "" {
		c.Schedule = "@daily"
	}
	return c
}

func defaultChannelFromEnv() Channel {
	ch := Channel{
		Name:              getEnv("CHANNEL_NAME", "TechFatafat"),
		Region:            getEnv("TREND_REGION", "india"),
		PrimaryLanguage:   getEnv("PRIMARY_LANGUAGE", "hi"),
		SecondaryLanguage: getEnv("SECONDARY_LANGUAGE", "en"),
		Classifier:        getEnv("LANGUAGE_CLASSIFIER", ClassifierTwoLanguage),
		FallbackTopics:    getEnvList("FALLBACK_TOPICS", DefaultFallbackTopics),
		ScriptTemplate:    getEnv("SCRIPT_TEMPLATE", DefaultScriptTemplate),
		Greeting:          getEnv("CHANNEL_GREETING", ""),
		Tags:              getEnvList("CHANNEL_TAGS", []string{"tech", "shorts"}),
		Schedule:          getEnv("CHANNEL_SCHEDULE", "@daily"),
	}

	voices := map[string]string{}
	for _, lang := range ch.Languages() {
		if v := getEnv("TTS_VOICE_"+strings.ToUpper(lang), ""); v != "" {
			voices[lang] = v
		}
	}
	ch.Voices = voices

	return ch.withDefaults()
}

// mergeChannels overlays file-defined channels onto base; a file channel with
// the same name (case-insensitive) replaces the base entry.
func mergeChannels(base, overlay []Channel) []Channel {
	out := append([]Channel(nil), base...)
	for _, ch := range overlay {
		_, idx, found := lo.FindIndexOf(out, func(existing Channel) bool {
			return strings.EqualFold(existing.Name, ch.Name)
		})
		if found {
			out[idx] = ch
			continue
		}
		out = append(out, ch)
	}
	return out
}
