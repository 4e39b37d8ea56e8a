package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"creative-ai-studio/internal/domain/model"
)

// CacheKey derives the content address of a request: a sha256 over the
// feature tag and the normalized payload fields in sorted-key order.
// Requester identity, priority and submission time never participate, so
// two semantically identical requests from different accounts share one
// entry.
func CacheKey(req *model.GenerationRequest) string {
	fields := map[string]string{}
	switch {
	case req.Image != nil:
		in := req.Image
		fields["prompt"] = in.Prompt
		fields["negative_prompt"] = in.NegativePrompt
		fields["style"] = in.Style
		fields["width"] = fmt.Sprint(in.Width)
		fields["height"] = fmt.Sprint(in.Height)
		fields["quantity"] = fmt.Sprint(in.Quantity)
		if req.Feature == model.FeatureAdvancedEdit {
			fields["source_url"] = in.SourceURL
			fields["edit_mode"] = in.EditMode
		}
	case req.Voice != nil:
		in := req.Voice
		fields["text"] = in.Text
		fields["voice_id"] = in.VoiceID
		fields["emotion"] = in.Emotion
		fields["speed"] = fmt.Sprintf("%.3f", in.Speed)
		fields["max_duration_sec"] = fmt.Sprint(in.MaxDurationSec)
	case req.Video != nil:
		in := req.Video
		fields["script"] = in.Script
		fields["avatar_id"] = in.AvatarID
		fields["aspect_ratio"] = in.AspectRatio
		fields["duration_sec"] = fmt.Sprint(in.DurationSec)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(req.Feature))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
