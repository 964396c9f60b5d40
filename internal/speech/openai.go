package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/rbright/voxchat/internal/audio"
)

// openAIPCMSampleRate is the fixed rate of OpenAI "pcm" speech output.
const openAIPCMSampleRate = 24000

// PCMPlayer plays mono s16 samples.
type PCMPlayer interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// OpenAISynthesizerConfig controls OpenAI speech synthesis.
type OpenAISynthesizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAISynthesizer synthesizes speech with OpenAI and plays it locally.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	player PCMPlayer
	logger *slog.Logger
}

// NewOpenAISynthesizer builds a synthesizer; a nil player uses the default Pulse sink.
func NewOpenAISynthesizer(cfg OpenAISynthesizerConfig, player PCMPlayer, logger *slog.Logger) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai speech requires OPENAI_API_KEY")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	if player == nil {
		player = audio.Player{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := openai.SpeechModel(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(strings.TrimSpace(cfg.Voice))
	if voice == "" {
		voice = openai.VoiceAlloy
	}

	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
		player: player,
		logger: logger.With("component", "speech.openai"),
	}, nil
}

func (o *OpenAISynthesizer) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return fmt.Errorf("read openai speech: %w", err)
	}
	o.logger.Debug("synthesized speech", "chars", len(text), "bytes", len(raw), "voice", o.voice)

	return o.player.Play(ctx, audio.SamplesFromPCM16LE(raw), openAIPCMSampleRate)
}
