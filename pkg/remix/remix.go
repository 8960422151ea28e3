package remix

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/handle"
)

// ErrGeneration is matched by every error returned by Client.Remix.
var ErrGeneration = errors.New("remix: generation failed")

// GenerationError tells which step of the remix failed.
type GenerationError struct {
	Step string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("remix: %s failed: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

const (
	DefaultAudioModel    = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultAnalysisModel = "gemini-2.5-flash"
	DefaultSpeechModel   = "gemini-2.5-flash-preview-tts"

	// Deep voice for bass and beatbox material
	DefaultVoice         = "Fenrir"
	DefaultFallbackVoice = "Kore"

	DefaultInstruction = "Listen to this audio track. I want you to create a short, creative audio improvisation that acts as a 'remix' or 'response' to this track. You can beatbox, hum, or generate synth-like vocal sounds that match the tempo and vibe. Do not speak normal words unless they are part of the song (like lyrics). The output MUST be audio. Be musical."

	DefaultAnalysisInstruction = "Analyze this music. Describe the genre, tempo (BPM), and mood. Then, write a short, rhythmic set of lyrics or beatbox sounds (e.g., 'Boom bap, tsh, ka-pow') that would fit perfectly as an overlay remix. Output ONLY the rhythmic text."

	DefaultRhythm = "Dynamic beatbox rhythm."

	PrimaryDescription  = "AI Audio Remix Generated"
	FallbackDescription = "Generated via Text-to-Speech Interpretation: "

	descriptionLength = 50
)

// Path tells how a result was produced.
type Path string

const (
	Primary  Path = "primary"
	Fallback Path = "fallback"
)

type Result struct {
	Handle      *handle.Handle `json:"handle"`
	Description string         `json:"description"`
	Path        Path           `json:"path"`
	Rhythm      string         `json:"rhythm,omitempty"`
}

// Registrar turns audio bytes into a playable handle.
type Registrar interface {
	Register(ctx context.Context, name, mediaType string, data []byte) (*handle.Handle, error)
}

type Config struct {
	Debug bool

	Generator Generator
	Analyzer  Analyzer
	Speaker   Speaker
	Handles   Registrar

	AudioModel          string
	AnalysisModel       string
	SpeechModel         string
	Voice               string
	FallbackVoice       string
	Instruction         string
	AnalysisInstruction string
	DefaultRhythm       string
}

type Client struct {
	debug     bool
	generator Generator
	analyzer  Analyzer
	speaker   Speaker
	handles   Registrar

	audioModel          string
	analysisModel       string
	speechModel         string
	voice               string
	fallbackVoice       string
	instruction         string
	analysisInstruction string
	defaultRhythm       string
}

func New(cfg *Config) *Client {
	return &Client{
		debug:               cfg.Debug,
		generator:           cfg.Generator,
		analyzer:            cfg.Analyzer,
		speaker:             cfg.Speaker,
		handles:             cfg.Handles,
		audioModel:          orDefault(cfg.AudioModel, DefaultAudioModel),
		analysisModel:       orDefault(cfg.AnalysisModel, DefaultAnalysisModel),
		speechModel:         orDefault(cfg.SpeechModel, DefaultSpeechModel),
		voice:               orDefault(cfg.Voice, DefaultVoice),
		fallbackVoice:       orDefault(cfg.FallbackVoice, DefaultFallbackVoice),
		instruction:         orDefault(cfg.Instruction, DefaultInstruction),
		analysisInstruction: orDefault(cfg.AnalysisInstruction, DefaultAnalysisInstruction),
		defaultRhythm:       orDefault(cfg.DefaultRhythm, DefaultRhythm),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *Client) log(format string, args ...any) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Remix generates a remix of the encoded audio. It tries to obtain audio
// directly and falls back to analysis plus speech synthesis when the model
// answers without audio. Transport errors are never retried.
func (c *Client) Remix(ctx context.Context, enc *audio.Encoded) (*Result, error) {
	data, err := enc.Bytes()
	if err != nil {
		return nil, &GenerationError{Step: "input", Err: err}
	}

	resp, err := c.generator.GenerateAudio(ctx, &AudioRequest{
		Model:       c.audioModel,
		Audio:       data,
		MediaType:   enc.MediaType,
		Instruction: c.instruction,
		Voice:       c.voice,
	})
	if err != nil {
		return nil, &GenerationError{Step: "audio generation", Err: err}
	}

	switch resp.Kind {
	case AudioPayload:
		c.log("remix: primary returned %d bytes of %s", len(resp.Audio), resp.MediaType)
		h, err := c.register(ctx, resp)
		if err != nil {
			return nil, err
		}
		return &Result{
			Handle:      h,
			Description: PrimaryDescription,
			Path:        Primary,
		}, nil
	case TextOnly, Empty:
		log.Printf("remix: primary returned %s response, switching to analysis and speech\n", resp.Kind)
		return c.fallback(ctx, data, enc.MediaType)
	default:
		return nil, &GenerationError{Step: "audio generation", Err: fmt.Errorf("unknown response kind %d", resp.Kind)}
	}
}

func (c *Client) fallback(ctx context.Context, data []byte, mediaType string) (*Result, error) {
	analysis, err := c.analyzer.Analyze(ctx, &AnalyzeRequest{
		Model:       c.analysisModel,
		Audio:       data,
		MediaType:   mediaType,
		Instruction: c.analysisInstruction,
	})
	if err != nil {
		return nil, &GenerationError{Step: "analysis", Err: err}
	}
	rhythm := strings.TrimSpace(analysis.Text)
	if analysis.Kind != TextOnly || rhythm == "" {
		c.log("remix: analysis returned %s response, using default rhythm", analysis.Kind)
		rhythm = c.defaultRhythm
	}

	speech, err := c.speaker.Speak(ctx, &SpeechRequest{
		Model: c.speechModel,
		Text:  rhythm,
		Voice: c.fallbackVoice,
	})
	if err != nil {
		return nil, &GenerationError{Step: "speech", Err: err}
	}
	if speech.Kind != AudioPayload {
		return nil, &GenerationError{Step: "speech", Err: fmt.Errorf("no audio in %s response", speech.Kind)}
	}

	h, err := c.register(ctx, speech)
	if err != nil {
		return nil, err
	}
	return &Result{
		Handle:      h,
		Description: FallbackDescription + truncate(rhythm, descriptionLength) + "...",
		Path:        Fallback,
		Rhythm:      rhythm,
	}, nil
}

func (c *Client) register(ctx context.Context, resp Response) (*handle.Handle, error) {
	data, mediaType, err := audio.Playable(resp.Audio, resp.MediaType)
	if err != nil {
		return nil, &GenerationError{Step: "decode", Err: err}
	}
	h, err := c.handles.Register(ctx, "remix"+audio.Extension(mediaType), mediaType, data)
	if err != nil {
		return nil, &GenerationError{Step: "register", Err: err}
	}
	return h, nil
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
