package remix

import (
	"context"
	"strings"
)

// Kind is the shape of a remote response.
type Kind int

const (
	Empty Kind = iota
	TextOnly
	AudioPayload
)

func (k Kind) String() string {
	switch k {
	case TextOnly:
		return "text"
	case AudioPayload:
		return "audio"
	default:
		return "empty"
	}
}

// Response is what a remote call produced. Only the fields of its kind are
// set.
type Response struct {
	Kind      Kind
	Audio     []byte
	MediaType string
	Text      string
}

func AudioResponse(data []byte, mediaType string) Response {
	if len(data) == 0 {
		return EmptyResponse()
	}
	return Response{Kind: AudioPayload, Audio: data, MediaType: mediaType}
}

func TextResponse(text string) Response {
	if strings.TrimSpace(text) == "" {
		return EmptyResponse()
	}
	return Response{Kind: TextOnly, Text: text}
}

func EmptyResponse() Response {
	return Response{Kind: Empty}
}

// AudioRequest asks for generated audio given an audio input.
type AudioRequest struct {
	Model       string
	Audio       []byte
	MediaType   string
	Instruction string
	Voice       string
}

// AnalyzeRequest asks for a text analysis of an audio input.
type AnalyzeRequest struct {
	Model       string
	Audio       []byte
	MediaType   string
	Instruction string
}

// SpeechRequest asks for the text to be spoken.
type SpeechRequest struct {
	Model string
	Text  string
	Voice string
}

type Generator interface {
	GenerateAudio(ctx context.Context, req *AudioRequest) (Response, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (Response, error)
}

type Speaker interface {
	Speak(ctx context.Context, req *SpeechRequest) (Response, error)
}
