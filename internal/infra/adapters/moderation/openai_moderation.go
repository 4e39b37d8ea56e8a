package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.ModerationAdapter = (*OpenAIModeration)(nil)

// OpenAIModeration runs the omni moderation model over text and image
// inputs. Per the port contract it never returns an error: an unreachable
// backend yields a flagged verdict.
type OpenAIModeration struct {
	client openai.Client
	model  openai.ModerationModel
	log    *zerolog.Logger
}

func NewOpenAIModeration(apiKey, modModel string, log *zerolog.Logger) (*OpenAIModeration, error) {
	if apiKey == "" {
		return nil, errors.New("moderation api key empty")
	}
	m := openai.ModerationModel(modModel)
	if modModel == "" {
		m = openai.ModerationModelOmniModerationLatest
	}
	return &OpenAIModeration{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
		log:    log,
	}, nil
}

func (o *OpenAIModeration) ModerateText(ctx context.Context, text string) adapter.Verdict {
	if text == "" {
		return adapter.Verdict{}
	}
	res, err := o.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: o.model,
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	})
	return o.toVerdict(res, err)
}

func (o *OpenAIModeration) ModerateImage(ctx context.Context, imageURL string) adapter.Verdict {
	if imageURL == "" {
		return adapter.Verdict{}
	}
	res, err := o.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: o.model,
		Input: openai.ModerationNewParamsInputUnion{
			OfModerationMultiModalArray: []openai.ModerationMultiModalInputUnionParam{{
				OfImageURL: &openai.ModerationImageURLInputParam{
					ImageURL: openai.ModerationImageURLInputImageURLParam{URL: imageURL},
				},
			}},
		},
	})
	return o.toVerdict(res, err)
}

func (o *OpenAIModeration) toVerdict(res *openai.ModerationNewResponse, err error) adapter.Verdict {
	if err != nil || res == nil || len(res.Results) == 0 {
		if o.log != nil {
			o.log.Warn().Err(err).Msg("moderation backend unavailable, failing closed")
		}
		return FailClosed()
	}
	r := res.Results[0]
	if !r.Flagged {
		return adapter.Verdict{}
	}

	// The SDK exposes categories as a struct of booleans; round-trip
	// through JSON to recover the wire names of the flagged ones.
	var cats map[string]bool
	var scores map[string]float64
	if b, merr := json.Marshal(r.Categories); merr == nil {
		_ = json.Unmarshal(b, &cats)
	}
	if b, merr := json.Marshal(r.CategoryScores); merr == nil {
		_ = json.Unmarshal(b, &scores)
	}

	v := adapter.Verdict{Flagged: true, Reason: "content policy violation"}
	for name, hit := range cats {
		if !hit {
			continue
		}
		v.Categories = append(v.Categories, name)
		if s := scores[name]; s > v.Confidence {
			v.Confidence = s
		}
	}
	sort.Strings(v.Categories)
	if len(v.Categories) == 0 {
		v.Categories = []string{"unspecified"}
		v.Confidence = 1.0
	}
	return v
}

// FailClosed is the verdict used when moderation cannot run.
func FailClosed() adapter.Verdict {
	return adapter.Verdict{
		Flagged:    true,
		Categories: []string{"error"},
		Confidence: 1.0,
		Reason:     "moderation unavailable",
	}
}
