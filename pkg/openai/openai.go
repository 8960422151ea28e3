package openai

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/igolaizola/sonicremix/pkg/remix"
	"github.com/sashabaranov/go-openai"
)

type Config struct {
	Debug      bool
	Token      string
	Model      string
	Voice      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	debug  bool
	client *openai.Client
	model  string
	voice  string
}

// New creates a speech client. Model and voice are used when the request
// doesn't name an OpenAI one.
func New(cfg *Config) *Client {
	c := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceOnyx)
	}
	return &Client{
		debug:  cfg.Debug,
		client: openai.NewClientWithConfig(c),
		model:  model,
		voice:  voice,
	}
}

func (c *Client) log(format string, args ...any) {
	if !c.debug {
		return
	}
	format += "\n"
	log.Printf(format, args...)
}

var voices = map[string]openai.SpeechVoice{
	string(openai.VoiceAlloy):   openai.VoiceAlloy,
	string(openai.VoiceEcho):    openai.VoiceEcho,
	string(openai.VoiceFable):   openai.VoiceFable,
	string(openai.VoiceOnyx):    openai.VoiceOnyx,
	string(openai.VoiceNova):    openai.VoiceNova,
	string(openai.VoiceShimmer): openai.VoiceShimmer,
}

var models = map[string]openai.SpeechModel{
	string(openai.TTSModel1):   openai.TTSModel1,
	string(openai.TTSModel1HD): openai.TTSModel1HD,
}

// Speak synthesizes the text as mp3. Gemini voice and model names are
// replaced by the configured ones.
func (c *Client) Speak(ctx context.Context, req *remix.SpeechRequest) (remix.Response, error) {
	model, ok := models[req.Model]
	if !ok {
		model = openai.SpeechModel(c.model)
	}
	voice, ok := voices[req.Voice]
	if !ok {
		voice = openai.SpeechVoice(c.voice)
	}
	c.log("openai: speaking %q with %s (%s)", req.Text, model, voice)
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return remix.Response{}, fmt.Errorf("openai: couldn't create speech: %w", err)
	}
	defer resp.Close()
	b, err := io.ReadAll(resp)
	if err != nil {
		return remix.Response{}, fmt.Errorf("openai: couldn't read speech: %w", err)
	}
	return remix.AudioResponse(b, "audio/mpeg"), nil
}
