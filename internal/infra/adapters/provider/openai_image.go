package provider

import (
	"bytes"
	"context"
	"encoding/base64"
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

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationProvider = (*OpenAIImage)(nil)

// OpenAIImage implements the image feature against the Images API.
type OpenAIImage struct {
	apiKey  string
	base    string // e.g., https://api.openai.com/v1
	model   string
	storage adapter.BlobStorage
	client  *http.Client
}

func NewOpenAIImage(apiKey string, storage adapter.BlobStorage) (*OpenAIImage, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	return &OpenAIImage{
		apiKey:  apiKey,
		base:    "https://api.openai.com/v1",
		model:   "dall-e-3",
		storage: storage,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (o *OpenAIImage) Name() string           { return "openai-image" }
func (o *OpenAIImage) Feature() model.Feature { return model.FeatureImage }

// EstimateCost prices per rendered image; larger canvases cost double.
func (o *OpenAIImage) EstimateCost(req *model.GenerationRequest) (int64, error) {
	if req.Image == nil {
		return 0, domain.ErrWrongPayload
	}
	per := int64(4)
	if req.Image.Width*req.Image.Height > 1024*1024 {
		per = 8
	}
	return per * int64(req.Image.Quantity), nil
}

func (o *OpenAIImage) IsAvailable(ctx context.Context) bool {
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

func (o *OpenAIImage) Generate(ctx context.Context, greq *model.GenerationRequest) (*model.GenerationResult, error) {
	if greq.Image == nil {
		return nil, domain.ErrWrongPayload
	}
	in := greq.Image

	prompt := in.Prompt
	if in.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, in.Style)
	}

	reqBody := struct {
		Model          string `json:"model"`
		Prompt         string `json:"prompt"`
		N              int    `json:"n"`
		Size           string `json:"size"`
		ResponseFormat string `json:"response_format"`
	}{
		Model:          o.model,
		Prompt:         prompt,
		N:              1, // dall-e-3 renders one image per call
		Size:           nearestSize(in.Width, in.Height),
		ResponseFormat: "b64_json",
	}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/images/generations", bytes.NewReader(b))
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

	var payload struct {
		Data []struct {
			B64 string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, classifyTransport(o.Name(), err)
	}
	if len(payload.Data) == 0 || payload.Data[0].B64 == "" {
		return nil, classifyTransport(o.Name(), errors.New("no image data in response"))
	}

	raw, err := base64.StdEncoding.DecodeString(payload.Data[0].B64)
	if err != nil {
		return nil, classifyTransport(o.Name(), err)
	}

	loc, err := o.storage.Upload(ctx, fmt.Sprintf("image/%s.png", uuid.NewString()), raw, "image/png")
	if err != nil {
		return nil, err
	}

	cost, _ := o.EstimateCost(greq)
	return &model.GenerationResult{
		ResultLocation: loc,
		Provider:       o.Name(),
		CostCents:      cost,
		ContentType:    "image/png",
		SizeBytes:      int64(len(raw)),
		Metadata:       map[string]string{"model": o.model},
	}, nil
}

// nearestSize maps arbitrary dimensions onto the sizes the API accepts.
func nearestSize(w, h int) string {
	switch {
	case w > h:
		return "1792x1024"
	case h > w:
		return "1024x1792"
	default:
		return "1024x1024"
	}
}
