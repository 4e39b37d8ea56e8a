package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*StabilityImage)(nil)

// StabilityImage serves image generation as a fallback and image-to-image
// editing as the primary advanced_edit path. The v2beta endpoints take
// multipart form bodies and return raw image bytes.
type StabilityImage struct {
	apiKey  string
	base    string
	feature model.Feature
	storage adapter.BlobStorage
	client  *http.Client
}

func NewStabilityImage(apiKey string, feature model.Feature, storage adapter.BlobStorage) (*StabilityImage, error) {
	if apiKey == "" {
		return nil, errors.New("stability api key empty")
	}
	if feature != model.FeatureImage && feature != model.FeatureAdvancedEdit {
		return nil, domain.ErrInvalidArgument
	}
	return &StabilityImage{
		apiKey:  apiKey,
		base:    "https://api.stability.ai/v2beta",
		feature: feature,
		storage: storage,
		client:  &http.Client{Timeout: 90 * time.Second},
	}, nil
}

func (s *StabilityImage) Name() string           { return "stability-image" }
func (s *StabilityImage) Feature() model.Feature { return s.feature }

func (s *StabilityImage) EstimateCost(req *model.GenerationRequest) (int64, error) {
	if req.Image == nil {
		return 0, domain.ErrWrongPayload
	}
	return 3 * int64(req.Image.Quantity), nil
}

func (s *StabilityImage) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/../v1/engines/list", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (s *StabilityImage) Generate(ctx context.Context, greq *model.GenerationRequest) (*model.GenerationResult, error) {
	if greq.Image == nil {
		return nil, domain.ErrWrongPayload
	}
	in := greq.Image

	endpoint := s.base + "/stable-image/generate/core"
	if s.feature == model.FeatureAdvancedEdit {
		endpoint = s.base + "/stable-image/edit/" + editEndpoint(in.EditMode)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("prompt", in.Prompt)
	if in.NegativePrompt != "" {
		_ = w.WriteField("negative_prompt", in.NegativePrompt)
	}
	_ = w.WriteField("aspect_ratio", aspectRatioOf(in.Width, in.Height))
	_ = w.WriteField("output_format", "png")
	if s.feature == model.FeatureAdvancedEdit {
		src, err := s.fetchSource(ctx, in.SourceURL)
		if err != nil {
			return nil, err
		}
		fw, err := w.CreateFormFile("image", "source.png")
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(src); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(s.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, classifyHTTP(s.Name(), resp.StatusCode, string(detail))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(s.Name(), err)
	}

	loc, err := s.storage.Upload(ctx, fmt.Sprintf("image/%s.png", uuid.NewString()), raw, "image/png")
	if err != nil {
		return nil, err
	}

	cost, _ := s.EstimateCost(greq)
	return &model.GenerationResult{
		ResultLocation: loc,
		Provider:       s.Name(),
		CostCents:      cost,
		ContentType:    "image/png",
		SizeBytes:      int64(len(raw)),
		Metadata:       map[string]string{"endpoint": endpoint},
	}, nil
}

func (s *StabilityImage) fetchSource(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(s.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, classifyHTTP(s.Name(), resp.StatusCode, "fetch source image")
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func editEndpoint(mode string) string {
	switch mode {
	case "background":
		return "replace-background-and-relight"
	case "retouch":
		return "inpaint"
	default:
		return "search-and-replace"
	}
}

func aspectRatioOf(w, h int) string {
	switch {
	case w > h:
		return "16:9"
	case h > w:
		return "9:16"
	default:
		return "1:1"
	}
}
