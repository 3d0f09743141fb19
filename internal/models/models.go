package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums

// Stage is one state of the per-run pipeline state machine.
type Stage string

const (
	StageQueued            Stage = "queued"
	StageSelectingTopic    Stage = "selecting_topic"
	StageComposingScript   Stage = "composing_script"
	StageSynthesizingAudio Stage = "synthesizing_audio"
	StageComposingVisual   Stage = "composing_visual"
	StageAssembling        Stage = "assembling"
	StagePublishing        Stage = "publishing"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Stages lists the forward path of a successful run, in order.
var Stages = []Stage{
	StageSelectingTopic,
	StageComposingScript,
	StageSynthesizingAudio,
	StageComposingVisual,
	StageAssembling,
	StagePublishing,
	StageDone,
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageQueued, StageSelectingTopic, StageComposingScript, StageSynthesizingAudio,
		StageComposingVisual, StageAssembling, StagePublishing, StageDone, StageFailed:
		return true
	}
	return false
}

type TopicSource string

const (
	TopicSourceTrending TopicSource = "trending"
	TopicSourceFallback TopicSource = "fallback"
	TopicSourceManual   TopicSource = "manual"
)

type VisualSource string

const (
	VisualSourceProvider   VisualSource = "provider"
	VisualSourceProcedural VisualSource = "procedural"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ---------------------------------------------------------------------------
// Pipeline values, each scoped to exactly one run
// ---------------------------------------------------------------------------

type Topic struct {
	Text   string      `json:"text"`
	Source TopicSource `json:"source"`
}

type Script struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

// Words returns the whitespace-delimited word sequence of the script.
func (s Script) Words() []string {
	return strings.Fields(s.Text)
}

// LanguageRun is a maximal contiguous span of script words sharing one
// language tag. Runs are never empty.
type LanguageRun struct {
	Language string   `json:"language"`
	Words    []string `json:"words"`
}

// Text joins the run's words with single spaces.
func (r LanguageRun) Text() string {
	return strings.Join(r.Words, " ")
}

// AudioClip is the synthesized speech for one LanguageRun. The file at Path is
// transient and owned by the run that produced it.
type AudioClip struct {
	Index    int     `json:"index"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"` // seconds
	Path     string  `json:"path"`
	Silent   bool    `json:"silent,omitempty"` // generated silence standing in for a failed run
}

// Release removes the clip's backing file. Safe to call more than once.
func (c AudioClip) Release() {
	if c.Path != "" {
		os.Remove(c.Path)
	}
}

// AudioTrack is the concatenation of clips in order, optionally with a
// background bed mixed underneath. TotalDuration is the exact sum of the clip
// durations and is never changed by the bed.
type AudioTrack struct {
	Clips         []AudioClip `json:"clips"`
	Path          string      `json:"path"`
	TotalDuration float64     `json:"total_duration"`
	BedMixed      bool        `json:"bed_mixed"`
}

type VisualAsset struct {
	Path   string       `json:"path"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Source VisualSource `json:"source"`
}

// RenderSpec is everything the assembler needs. TargetDuration is always
// within the configured duration window.
type RenderSpec struct {
	Visual         VisualAsset `json:"visual"`
	Track          AudioTrack  `json:"track"`
	TargetDuration float64     `json:"target_duration"`
	CaptionsPath   string      `json:"captions_path,omitempty"`
}

// Metadata is the publish bundle handed to a sink alongside the media file.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CategoryID  string   `json:"category_id"`
	Tags        []string `json:"tags"`
	Visibility  string   `json:"visibility"`
	Channel     string   `json:"channel"`
}

type Artifact struct {
	Path     string   `json:"path"`
	Topic    string   `json:"topic"`
	Duration float64  `json:"duration"`
	Metadata Metadata `json:"metadata"`
}

// ---------------------------------------------------------------------------
// Run records
// ---------------------------------------------------------------------------

type Run struct {
	ID           uuid.UUID  `json:"id"`
	Channel      string     `json:"channel"`
	Topic        *string    `json:"topic,omitempty"`
	TopicSource  *string    `json:"topic_source,omitempty"`
	Stage        Stage      `json:"stage"`
	FailedStage  *string    `json:"failed_stage,omitempty"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	DurationSec  *float64   `json:"duration_sec,omitempty"`
	Metadata     JSONB      `json:"metadata,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunOutcome is what a finished pipeline reports back to the run store.
type RunOutcome struct {
	Topic       string
	TopicSource TopicSource
	RemoteID    string
	Duration    float64
	Metadata    JSONB
}

// RunFailure describes a failed run for the run store.
type RunFailure struct {
	Stage   Stage
	Code    string
	Message string
}

// API request/response types

type CreateRunRequest struct {
	Channel string  `json:"channel"`
	Topic   *string `json:"topic,omitempty"` // skips trend discovery when set
}

type CreateRunResponse struct {
	RunID uuid.UUID `json:"run_id"`
	Stage Stage     `json:"stage"`
}

type ListRunsResponse struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type ChannelSummary struct {
	Name      string   `json:"name"`
	Region    string   `json:"region"`
	Languages []string `json:"languages"`
	Schedule  string   `json:"schedule,omitempty"`
}

// SecondsString formats a duration in seconds the way ffmpeg expects it.
func SecondsString(sec float64) string {
	return fmt.Sprintf("%.3f", sec)
}
