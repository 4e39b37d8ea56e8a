package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*ElevenLabsVoice)(nil)

// wordsPerSecond is the speaking-rate estimate used to truncate input so
// the synthesized clip fits the requested maximum duration.
const wordsPerSecond = 2.5

// ElevenLabsVoice is the primary text-to-speech provider.
type ElevenLabsVoice struct {
	apiKey       string
	base         string
	defaultVoice string
	storage      adapter.BlobStorage
	client       *http.Client
}

func NewElevenLabsVoice(apiKey string, storage adapter.BlobStorage) (*ElevenLabsVoice, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs api key empty")
	}
	return &ElevenLabsVoice{
		apiKey:       apiKey,
		base:         "https://api.elevenlabs.io/v1",
		defaultVoice: "21m00Tcm4TlvDq8ikWAM",
		storage:      storage,
		client:       &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (e *ElevenLabsVoice) Name() string           { return "elevenlabs" }
func (e *ElevenLabsVoice) Feature() model.Feature { return model.FeatureVoice }

// EstimateCost prices per input character after duration truncation.
func (e *ElevenLabsVoice) EstimateCost(req *model.GenerationRequest) (int64, error) {
	if req.Voice == nil {
		return 0, domain.ErrWrongPayload
	}
	text := TruncateForDuration(req.Voice.Text, req.Voice.MaxDurationSec, req.Voice.Speed)
	chars := int64(len(text))
	cents := (chars + 99) / 100 * 3 // 3 cents per started 100 characters
	if cents == 0 {
		cents = 1
	}
	return cents, nil
}

func (e *ElevenLabsVoice) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base+"/voices", nil)
	if err != nil {
		return false
	}
	req.Header.Set("xi-api-key", e.apiKey)
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (e *ElevenLabsVoice) Generate(ctx context.Context, greq *model.GenerationRequest) (*model.GenerationResult, error) {
	if greq.Voice == nil {
		return nil, domain.ErrWrongPayload
	}
	in := greq.Voice

	voiceID := in.VoiceID
	if voiceID == "" {
		voiceID = e.defaultVoice
	}
	text := TruncateForDuration(in.Text, in.MaxDurationSec, in.Speed)
	stability, style := emotionKnobs(in.Emotion)

	reqBody := struct {
		Text          string `json:"text"`
		ModelID       string `json:"model_id"`
		VoiceSettings struct {
			Stability       float64 `json:"stability"`
			SimilarityBoost float64 `json:"similarity_boost"`
			Style           float64 `json:"style"`
			Speed           float64 `json:"speed"`
		} `json:"voice_settings"`
	}{Text: text, ModelID: "eleven_multilingual_v2"}
	reqBody.VoiceSettings.Stability = stability
	reqBody.VoiceSettings.SimilarityBoost = 0.75
	reqBody.VoiceSettings.Style = style
	reqBody.VoiceSettings.Speed = in.Speed

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/text-to-speech/"+voiceID, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransport(e.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, classifyHTTP(e.Name(), resp.StatusCode, string(detail))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(e.Name(), err)
	}

	loc, err := e.storage.Upload(ctx, fmt.Sprintf("voice/%s.mp3", uuid.NewString()), raw, "audio/mpeg")
	if err != nil {
		return nil, err
	}

	cost, _ := e.EstimateCost(greq)
	return &model.GenerationResult{
		ResultLocation: loc,
		Provider:       e.Name(),
		CostCents:      cost,
		ContentType:    "audio/mpeg",
		SizeBytes:      int64(len(raw)),
		Metadata:       map[string]string{"voice_id": voiceID},
	}, nil
}

// TruncateForDuration cuts text on word boundaries so the clip fits
// maxSec at the estimated speaking rate. speed scales the rate.
func TruncateForDuration(text string, maxSec int, speed float64) string {
	if maxSec <= 0 {
		return text
	}
	if speed <= 0 {
		speed = 1.0
	}
	maxWords := int(float64(maxSec) * wordsPerSecond * speed)
	if maxWords <= 0 {
		maxWords = 1
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

// emotionKnobs maps the abstract emotion parameter onto the provider's
// numeric stability/style settings.
func emotionKnobs(emotion string) (stability, style float64) {
	switch emotion {
	case "happy":
		return 0.35, 0.6
	case "serious":
		return 0.75, 0.1
	case "excited":
		return 0.25, 0.8
	default: // neutral
		return 0.5, 0.0
	}
}
