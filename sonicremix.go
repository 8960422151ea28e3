package sonicremix

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/igolaizola/sonicremix/pkg/gemini"
	"github.com/igolaizola/sonicremix/pkg/openai"
	"github.com/igolaizola/sonicremix/pkg/remix"
)

// Backend configures the remote services used to generate remixes.
type Backend struct {
	Debug bool
	Proxy string

	GeminiKey      string
	OpenAIKey      string
	SpeechProvider string

	AudioModel    string
	AnalysisModel string
	SpeechModel   string
	Voice         string
	FallbackVoice string
}

// HTTPClient returns the client used for remote calls. It has no timeout,
// calls end when their context is done.
func HTTPClient(proxy string) (*http.Client, error) {
	httpClient := &http.Client{}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	return httpClient, nil
}

// NewRemixClient creates a remix client that registers its results in the
// given registrar.
func NewRemixClient(ctx context.Context, cfg *Backend, handles remix.Registrar) (*remix.Client, error) {
	httpClient, err := HTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	g, err := gemini.New(ctx, &gemini.Config{
		Debug:      cfg.Debug,
		Key:        cfg.GeminiKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't create gemini client: %w", err)
	}

	var speaker remix.Speaker = g
	switch cfg.SpeechProvider {
	case "", "gemini":
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("missing openai key for speech provider openai")
		}
		speaker = openai.New(&openai.Config{
			Debug:      cfg.Debug,
			Token:      cfg.OpenAIKey,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("unknown speech provider: %s", cfg.SpeechProvider)
	}

	return remix.New(&remix.Config{
		Debug:         cfg.Debug,
		Generator:     g,
		Analyzer:      g,
		Speaker:       speaker,
		Handles:       handles,
		AudioModel:    cfg.AudioModel,
		AnalysisModel: cfg.AnalysisModel,
		SpeechModel:   cfg.SpeechModel,
		Voice:         cfg.Voice,
		FallbackVoice: cfg.FallbackVoice,
	}), nil
}
