package model

import (
	"strings"

	"creative-ai-studio/internal/domain"
)

// Feature names one generation capability routed by the orchestrator.
type Feature string

const (
	FeatureImage        Feature = "image"
	FeatureVoice        Feature = "voice"
	FeatureVideo        Feature = "video"
	FeatureAdvancedEdit Feature = "advanced_edit"
)

// Features lists every routable feature.
var Features = []Feature{FeatureImage, FeatureVoice, FeatureVideo, FeatureAdvancedEdit}

// ImageInput is the payload for image generation and advanced editing.
type ImageInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Style          string `json:"style,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Quantity       int    `json:"quantity,omitempty"`

	// SourceURL and EditMode are only meaningful for advanced_edit.
	SourceURL string `json:"source_url,omitempty"`
	EditMode  string `json:"edit_mode,omitempty"`
}

// VoiceInput is the payload for text-to-speech.
type VoiceInput struct {
	Text           string  `json:"text"`
	VoiceID        string  `json:"voice_id,omitempty"`
	Emotion        string  `json:"emotion,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	MaxDurationSec int     `json:"max_duration_sec,omitempty"`
}

// VideoInput is the payload for avatar video generation.
type VideoInput struct {
	Script      string `json:"script"`
	AvatarID    string `json:"avatar_id,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// GenerationRequest is a tagged union: Feature selects exactly one of the
// payload pointers. Normalize before hashing or dispatching so equivalent
// requests compare equal.
type GenerationRequest struct {
	Feature     Feature     `json:"feature"`
	RequesterID string      `json:"requester_id"`
	Priority    int         `json:"priority,omitempty"`
	Image       *ImageInput `json:"image,omitempty"`
	Voice       *VoiceInput `json:"voice,omitempty"`
	Video       *VideoInput `json:"video,omitempty"`
}

// Normalize trims free text and fills defaults in place.
func (r *GenerationRequest) Normalize() {
	switch {
	case r.Image != nil:
		r.Image.Prompt = strings.TrimSpace(r.Image.Prompt)
		r.Image.NegativePrompt = strings.TrimSpace(r.Image.NegativePrompt)
		r.Image.Style = strings.ToLower(strings.TrimSpace(r.Image.Style))
		if r.Image.Width <= 0 {
			r.Image.Width = 1024
		}
		if r.Image.Height <= 0 {
			r.Image.Height = 1024
		}
		if r.Image.Quantity <= 0 {
			r.Image.Quantity = 1
		}
	case r.Voice != nil:
		r.Voice.Text = strings.TrimSpace(r.Voice.Text)
		r.Voice.Emotion = strings.ToLower(strings.TrimSpace(r.Voice.Emotion))
		if r.Voice.Emotion == "" {
			r.Voice.Emotion = "neutral"
		}
		if r.Voice.Speed <= 0 {
			r.Voice.Speed = 1.0
		}
	case r.Video != nil:
		r.Video.Script = strings.TrimSpace(r.Video.Script)
		if r.Video.AspectRatio == "" {
			r.Video.AspectRatio = "16:9"
		}
		if r.Video.DurationSec <= 0 {
			r.Video.DurationSec = 8
		}
	}
}

// Validate checks the union is well-formed: exactly one payload set, the
// tag matching it, and the required free-text fields non-empty.
func (r *GenerationRequest) Validate() error {
	if r.RequesterID == "" {
		return domain.ErrInvalidArgument
	}
	set := 0
	if r.Image != nil {
		set++
	}
	if r.Voice != nil {
		set++
	}
	if r.Video != nil {
		set++
	}
	if set != 1 {
		return domain.ErrWrongPayload
	}
	switch r.Feature {
	case FeatureImage, FeatureAdvancedEdit:
		if r.Image == nil {
			return domain.ErrWrongPayload
		}
		if r.Image.Prompt == "" {
			return domain.ErrInvalidArgument
		}
		if r.Feature == FeatureAdvancedEdit && r.Image.SourceURL == "" {
			return domain.ErrInvalidArgument
		}
	case FeatureVoice:
		if r.Voice == nil {
			return domain.ErrWrongPayload
		}
		if r.Voice.Text == "" {
			return domain.ErrInvalidArgument
		}
	case FeatureVideo:
		if r.Video == nil {
			return domain.ErrWrongPayload
		}
		if r.Video.Script == "" {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}

// Text returns the free-text body subject to moderation.
func (r *GenerationRequest) Text() string {
	switch {
	case r.Image != nil:
		return r.Image.Prompt
	case r.Voice != nil:
		return r.Voice.Text
	case r.Video != nil:
		return r.Video.Script
	}
	return ""
}

// GenerationResult is what a provider (or the cache) produced.
type GenerationResult struct {
	ResultLocation string            `json:"result_location"`
	Provider       string            `json:"provider"`
	CostCents      int64             `json:"cost_cents"`
	ContentType    string            `json:"content_type,omitempty"`
	SizeBytes      int64             `json:"size_bytes,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Cached reports whether this result was served from the result cache.
func (g *GenerationResult) Cached() bool {
	return g.Metadata["cached"] == "true"
}

// MarkCached tags the result as cache-served and zeroes its cost.
func (g *GenerationResult) MarkCached() {
	if g.Metadata == nil {
		g.Metadata = map[string]string{}
	}
	g.Metadata["cached"] = "true"
	g.CostCents = 0
}
