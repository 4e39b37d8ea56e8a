package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*OpenAIVoice)(nil)

// OpenAIVoice is the text-to-speech fallback via the Audio API.
type OpenAIVoice struct {
	apiKey  string
	base    string
	model   string
	storage adapter.BlobStorage
	client  *http.Client
}

func NewOpenAIVoice(apiKey string, storage adapter.BlobStorage) (*OpenAIVoice, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	return &OpenAIVoice{
		apiKey:  apiKey,
		base:    "https://api.openai.com/v1",
		model:   "tts-1",
		storage: storage,
		client:  &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (o *OpenAIVoice) Name() string           { return "openai-voice" }
func (o *OpenAIVoice) Feature() model.Feature { return model.FeatureVoice }

func (o *OpenAIVoice) EstimateCost(req *model.GenerationRequest) (int64, error) {
	if req.Voice == nil {
		return 0, domain.ErrWrongPayload
	}
	text := TruncateForDuration(req.Voice.Text, req.Voice.MaxDurationSec, req.Voice.Speed)
	cents := int64(len(text)) * 15 / 10000 // $0.015 per 1k characters
	if cents == 0 {
		cents = 1
	}
	return cents, nil
}

func (o *OpenAIVoice) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (o *OpenAIVoice) Generate(ctx context.Context, greq *model.GenerationRequest) (*model.GenerationResult, error) {
	if greq.Voice == nil {
		return nil, domain.ErrWrongPayload
	}
	in := greq.Voice

	voice := in.VoiceID
	if voice == "" {
		voice = "alloy"
	}
	text := TruncateForDuration(in.Text, in.MaxDurationSec, in.Speed)

	reqBody := struct {
		Model string  `json:"model"`
		Input string  `json:"input"`
		Voice string  `json:"voice"`
		Speed float64 `json:"speed,omitempty"`
	}{Model: o.model, Input: text, Voice: voice, Speed: in.Speed}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/audio/speech", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classifyTransport(o.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, classifyHTTP(o.Name(), resp.StatusCode, string(detail))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(o.Name(), err)
	}

	loc, err := o.storage.Upload(ctx, fmt.Sprintf("voice/%s.mp3", uuid.NewString()), raw, "audio/mpeg")
	if err != nil {
		return nil, err
	}

	cost, _ := o.EstimateCost(greq)
	return &model.GenerationResult{
		ResultLocation: loc,
		Provider:       o.Name(),
		CostCents:      cost,
		ContentType:    "audio/mpeg",
		SizeBytes:      int64(len(raw)),
		Metadata:       map[string]string{"model": o.model, "voice": voice},
	}, nil
}
