// Package gemini talks to the Gemini API to generate remixes, analyze music
// and synthesize speech.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/igolaizola/sonicremix/pkg/remix"
	"google.golang.org/genai"
)

type Config struct {
	Debug      bool
	Key        string
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

type Client struct {
	debug  bool
	client *genai.Client
}

// New creates a Gemini client. The key is required.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.Key == "" {
		return nil, errors.New("gemini: missing api key")
	}
	ccfg := &genai.ClientConfig{
		APIKey:     cfg.Key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		ccfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: couldn't create client: %w", err)
	}
	return &Client{
		debug:  cfg.Debug,
		client: client,
	}, nil
}

func (c *Client) log(format string, args ...any) {
	if !c.debug {
		return
	}
	format += "\n"
	log.Printf(format, args...)
}

// GenerateAudio asks the model for an audio response to the input audio.
func (c *Client) GenerateAudio(ctx context.Context, req *remix.AudioRequest) (remix.Response, error) {
	contents, cfg := audioRequest(req)
	c.log("gemini: generating audio with %s (%d bytes of %s)", req.Model, len(req.Audio), req.MediaType)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return remix.Response{}, fmt.Errorf("gemini: couldn't generate audio: %w", err)
	}
	out := classify(resp)
	c.log("gemini: audio generation returned %s response", out.Kind)
	return out, nil
}

// Analyze asks the model for a text description of the input audio.
func (c *Client) Analyze(ctx context.Context, req *remix.AnalyzeRequest) (remix.Response, error) {
	contents := analyzeRequest(req)
	c.log("gemini: analyzing with %s", req.Model)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, nil)
	if err != nil {
		return remix.Response{}, fmt.Errorf("gemini: couldn't analyze audio: %w", err)
	}
	out := classify(resp)
	c.log("gemini: analysis returned %s response", out.Kind)
	return out, nil
}

// Speak synthesizes the text with the given voice.
func (c *Client) Speak(ctx context.Context, req *remix.SpeechRequest) (remix.Response, error) {
	contents, cfg := speechRequest(req)
	c.log("gemini: speaking %q with %s (%s)", req.Text, req.Model, req.Voice)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return remix.Response{}, fmt.Errorf("gemini: couldn't synthesize speech: %w", err)
	}
	out := classify(resp)
	c.log("gemini: speech returned %s response", out.Kind)
	return out, nil
}

func audioConfig(voice string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
	}
	if voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		}
	}
	return cfg
}

func audioRequest(req *remix.AudioRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Audio, req.MediaType),
		genai.NewPartFromText(req.Instruction),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, audioConfig(req.Voice)
}

func analyzeRequest(req *remix.AnalyzeRequest) []*genai.Content {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Audio, req.MediaType),
		genai.NewPartFromText(req.Instruction),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func speechRequest(req *remix.SpeechRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	parts := []*genai.Part{genai.NewPartFromText(req.Text)}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, audioConfig(req.Voice)
}

// classify reduces a model response to the first audio part of the first
// candidate or, failing that, its text.
func classify(resp *genai.GenerateContentResponse) remix.Response {
	if resp == nil || len(resp.Candidates) == 0 {
		return remix.EmptyResponse()
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return remix.EmptyResponse()
	}
	var texts []string
	for _, p := range cand.Content.Parts {
		if p == nil {
			continue
		}
		if isAudio(p.InlineData) {
			return remix.AudioResponse(p.InlineData.Data, p.InlineData.MIMEType)
		}
		if p.Text != "" && !p.Thought {
			texts = append(texts, p.Text)
		}
	}
	return remix.TextResponse(strings.Join(texts, ""))
}

// isAudio reports whether the blob carries audio. An untyped blob is
// assumed to be audio.
func isAudio(b *genai.Blob) bool {
	if b == nil || len(b.Data) == 0 {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(b.MIMEType))
	return mediaType == "" || strings.HasPrefix(mediaType, "audio/")
}
