package session

import (
	"context"

	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/core/voice"
)

var (
	_ Transcriber = (*voice.Pipeline)(nil)
	_ Answerer    = (*answer.Generator)(nil)
)

// PipelineSynthesizer adapts a voice pipeline to Synthesizer.
type PipelineSynthesizer struct {
	Pipeline *voice.Pipeline
}

func (p PipelineSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	synth, err := p.Pipeline.Synthesize(ctx, text, voiceID)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: synth.Audio, MimeType: synth.MimeType}, nil
}
