package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*VeoVideo)(nil)

// VeoVideo generates short avatar/script videos through the official SDK.
// Video generation is a long-running operation: the adapter starts it and
// polls until done or the caller's deadline expires.
type VeoVideo struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
	storage      adapter.BlobStorage
}

func NewVeoVideo(ctx context.Context, apiKey, baseURL, videoModel string, storage adapter.BlobStorage) (*VeoVideo, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if videoModel == "" {
		videoModel = "veo-2.0-generate-001"
	}
	return &VeoVideo{
		client:       c,
		model:        videoModel,
		pollInterval: 10 * time.Second,
		storage:      storage,
	}, nil
}

func (v *VeoVideo) Name() string           { return "veo" }
func (v *VeoVideo) Feature() model.Feature { return model.FeatureVideo }

// EstimateCost prices per second of generated footage.
func (v *VeoVideo) EstimateCost(req *model.GenerationRequest) (int64, error) {
	if req.Video == nil {
		return 0, domain.ErrWrongPayload
	}
	return 35 * int64(req.Video.DurationSec), nil
}

func (v *VeoVideo) IsAvailable(ctx context.Context) bool {
	_, err := v.client.Models.Get(ctx, v.model, nil)
	return err == nil
}

func (v *VeoVideo) Generate(ctx context.Context, greq *model.GenerationRequest) (*model.GenerationResult, error) {
	if greq.Video == nil {
		return nil, domain.ErrWrongPayload
	}
	in := greq.Video

	prompt := in.Script
	if in.AvatarID != "" {
		prompt = fmt.Sprintf("A presenter (%s) speaking to camera: %s", in.AvatarID, in.Script)
	}

	op, err := v.client.Models.GenerateVideos(ctx, v.model, prompt, nil, &genai.GenerateVideosConfig{
		AspectRatio:     in.AspectRatio,
		DurationSeconds: genai.Ptr(int32(in.DurationSec)),
		NumberOfVideos:  1,
	})
	if err != nil {
		return nil, classifyVeo(err)
	}

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, &domain.ProviderError{Provider: v.Name(), Retryable: true, Err: ctx.Err()}
		case <-ticker.C:
		}
		op, err = v.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, classifyVeo(err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, &domain.ProviderError{Provider: v.Name(), Retryable: true, Err: errors.New("operation finished with no video")}
	}
	video := op.Response.GeneratedVideos[0].Video

	// Prefer inline bytes; fall back to the hosted URI when the API
	// returns a file reference instead.
	loc := video.URI
	var size int64
	if len(video.VideoBytes) > 0 {
		loc, err = v.storage.Upload(ctx, fmt.Sprintf("video/%s.mp4", uuid.NewString()), video.VideoBytes, "video/mp4")
		if err != nil {
			return nil, err
		}
		size = int64(len(video.VideoBytes))
	}
	if loc == "" {
		return nil, &domain.ProviderError{Provider: v.Name(), Retryable: true, Err: errors.New("video has neither bytes nor uri")}
	}

	cost, _ := v.EstimateCost(greq)
	return &model.GenerationResult{
		ResultLocation: loc,
		Provider:       v.Name(),
		CostCents:      cost,
		ContentType:    "video/mp4",
		SizeBytes:      size,
		Metadata:       map[string]string{"model": v.model},
	}, nil
}

func classifyVeo(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTP("veo", apiErr.Code, apiErr.Message)
	}
	if isTimeout(err) {
		return &domain.ProviderError{Provider: "veo", Retryable: true, Err: err}
	}
	return classifyTransport("veo", err)
}
