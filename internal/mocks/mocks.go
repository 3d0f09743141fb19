// Package mocks provides mock implementations of provider interfaces for testing.
package mocks

import (
	"context"

	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/services"
	"github.com/stretchr/testify/mock"
)

// MockTTS is a mock implementation of services.TTSService
type MockTTS struct {
	mock.Mock
}

func (m *MockTTS) GenerateSpeech(ctx context.Context, text, language string) (*services.TTSResponse, error) {
	args := m.Called(ctx, text, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TTSResponse), args.Error(1)
}

// MockProber is a mock implementation of synth.Prober
type MockProber struct {
	mock.Mock
}

func (m *MockProber) GetAudioDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

// MockImageProvider is a mock implementation of services.ImageProvider
type MockImageProvider struct {
	mock.Mock
}

func (m *MockImageProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockImageProvider) FetchImage(ctx context.Context, topic string) ([]byte, error) {
	args := m.Called(ctx, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockPublishSink is a mock implementation of pipeline.PublishSink
type MockPublishSink struct {
	mock.Mock
}

func (m *MockPublishSink) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPublishSink) Publish(ctx context.Context, artifact models.Artifact) (string, error) {
	args := m.Called(ctx, artifact)
	return args.String(0), args.Error(1)
}

// MockEnricher is a mock implementation of script.Enricher
type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, req services.EnrichRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
