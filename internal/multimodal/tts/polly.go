package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
)

// PollyTTSConfig holds configuration for the Amazon Polly backend.
type PollyTTSConfig struct {
	AccessKey string
	SecretKey string
	Region    string // default: us-east-1
	Voice     string // default: Joanna
}

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyTTS synthesizes MP3 speech with Amazon Polly.
type PollyTTS struct {
	client pollyAPI // nil when credentials are missing
	voice  string
}

// NewPollyTTS builds a Polly client from static credentials. Missing credentials are not an
// error here; Synthesize reports the backend as unavailable instead.
func NewPollyTTS(ctx context.Context, cfg PollyTTSConfig) (*PollyTTS, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = string(types.VoiceIdJoanna)
	}
	p := &PollyTTS{voice: cfg.Voice}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p, nil
}

func newPollyWithClient(client pollyAPI, voice string) *PollyTTS {
	return &PollyTTS{client: client, voice: voice}
}

func (p *PollyTTS) Name() string { return "polly" }

func (p *PollyTTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	const op = "polly synthesize"
	if p.client == nil {
		return nil, apperr.Unavailable(op, apperr.ErrNotConfigured)
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(req.Input),
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      types.VoiceId(voice),
	})
	if err != nil {
		return nil, apperr.Upstream(op, awsStatus(err), err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, apperr.Upstream(op, 0, fmt.Errorf("read audio stream: %w", err))
	}
	if len(audio) == 0 {
		return nil, apperr.UpstreamError(op, errors.New("empty audio stream"))
	}

	return &SynthesisResult{
		Audio:       audio,
		ContentType: ContentTypeMP3,
	}, nil
}

func awsStatus(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
