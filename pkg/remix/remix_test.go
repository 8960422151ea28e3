package remix

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/handle"
)

type fakeService struct {
	audio    Response
	audioErr error
	analysis Response
	analyErr error
	speech   Response
	speakErr error

	audioCalls   int
	analyzeCalls int
	speakCalls   int
	spoken       []string
	lastAudio    *AudioRequest
	lastSpeech   *SpeechRequest
}

func (f *fakeService) GenerateAudio(ctx context.Context, req *AudioRequest) (Response, error) {
	f.audioCalls++
	f.lastAudio = req
	return f.audio, f.audioErr
}

func (f *fakeService) Analyze(ctx context.Context, req *AnalyzeRequest) (Response, error) {
	f.analyzeCalls++
	return f.analysis, f.analyErr
}

func (f *fakeService) Speak(ctx context.Context, req *SpeechRequest) (Response, error) {
	f.speakCalls++
	f.spoken = append(f.spoken, req.Text)
	f.lastSpeech = req
	return f.speech, f.speakErr
}

type fakeRegistrar struct {
	data      [][]byte
	mediaType []string
	err       error
}

func (r *fakeRegistrar) Register(ctx context.Context, name, mediaType string, data []byte) (*handle.Handle, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.data = append(r.data, data)
	r.mediaType = append(r.mediaType, mediaType)
	return &handle.Handle{ID: "h1", Name: name, MediaType: mediaType, Size: len(data)}, nil
}

func newTestClient(svc *fakeService, reg *fakeRegistrar) *Client {
	return New(&Config{
		Generator: svc,
		Analyzer:  svc,
		Speaker:   svc,
		Handles:   reg,
	})
}

func testInput(t *testing.T) *audio.Encoded {
	t.Helper()
	// 3 seconds of silent 8kHz mono 16-bit audio
	pcm := make([]byte, 3*8000*2)
	wav, typ, err := audio.Playable(pcm, "audio/L16;rate=8000")
	if err != nil {
		t.Fatal(err)
	}
	enc, err := audio.Encode(context.Background(), "input.wav", typ, bytes.NewReader(wav))
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

func TestPrimaryAudio(t *testing.T) {
	svc := &fakeService{audio: AudioResponse([]byte("ID3mp3data"), "audio/mpeg")}
	reg := &fakeRegistrar{}
	c := newTestClient(svc, reg)

	got, err := c.Remix(context.Background(), testInput(t))
	if err != nil {
		t.Fatalf("Remix() err = %v; want nil", err)
	}
	if got.Description != "AI Audio Remix Generated" {
		t.Errorf("Description = %q; want %q", got.Description, "AI Audio Remix Generated")
	}
	if got.Path != Primary {
		t.Errorf("Path = %q; want %q", got.Path, Primary)
	}
	if svc.analyzeCalls != 0 || svc.speakCalls != 0 {
		t.Errorf("fallback calls = %d, %d; want 0, 0", svc.analyzeCalls, svc.speakCalls)
	}
	if len(reg.data) != 1 || string(reg.data[0]) != "ID3mp3data" {
		t.Errorf("registered = %q; want the primary payload", reg.data)
	}
	if got.Handle == nil || got.Handle.MediaType != "audio/mpeg" {
		t.Errorf("Handle = %+v; want audio/mpeg handle", got.Handle)
	}
}

func TestPrimaryRequest(t *testing.T) {
	svc := &fakeService{audio: AudioResponse([]byte("x"), "audio/mpeg")}
	c := newTestClient(svc, &fakeRegistrar{})
	in := testInput(t)
	if _, err := c.Remix(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	req := svc.lastAudio
	if req.Voice != "Fenrir" {
		t.Errorf("Voice = %q; want Fenrir", req.Voice)
	}
	if req.Model != DefaultAudioModel {
		t.Errorf("Model = %q; want %q", req.Model, DefaultAudioModel)
	}
	if req.MediaType != in.MediaType {
		t.Errorf("MediaType = %q; want %q", req.MediaType, in.MediaType)
	}
	if len(req.Audio) != in.Size {
		t.Errorf("len(Audio) = %d; want %d", len(req.Audio), in.Size)
	}
	if !strings.Contains(req.Instruction, "beatbox") {
		t.Errorf("Instruction = %q; want beatbox instruction", req.Instruction)
	}
}

func TestFallbackOnTextOnly(t *testing.T) {
	svc := &fakeService{
		audio:    TextResponse("Sorry, I can't do that"),
		analysis: TextResponse("Boom bap tsh ka-pow"),
		speech:   AudioResponse([]byte{0, 0, 1, 0, 2, 0}, "audio/L16;codec=pcm;rate=24000"),
	}
	reg := &fakeRegistrar{}
	c := newTestClient(svc, reg)

	got, err := c.Remix(context.Background(), testInput(t))
	if err != nil {
		t.Fatalf("Remix() err = %v; want nil", err)
	}
	want := "Generated via Text-to-Speech Interpretation: Boom bap tsh ka-pow"
	if !strings.HasPrefix(got.Description, want) {
		t.Errorf("Description = %q; want prefix %q", got.Description, want)
	}
	if got.Path != Fallback || got.Rhythm != "Boom bap tsh ka-pow" {
		t.Errorf("Path, Rhythm = %q, %q; want fallback with rhythm", got.Path, got.Rhythm)
	}
	if svc.analyzeCalls != 1 || svc.speakCalls != 1 {
		t.Errorf("fallback calls = %d, %d; want 1, 1", svc.analyzeCalls, svc.speakCalls)
	}
	if svc.lastSpeech.Voice != "Kore" {
		t.Errorf("speech Voice = %q; want Kore", svc.lastSpeech.Voice)
	}
	if reg.mediaType[0] != "audio/wav" {
		t.Errorf("registered media type = %q; want audio/wav", reg.mediaType[0])
	}
}

func TestFallbackOnEmpty(t *testing.T) {
	svc := &fakeService{
		audio:    EmptyResponse(),
		analysis: TextResponse("tsh tsh"),
		speech:   AudioResponse([]byte("mp3"), "audio/mpeg"),
	}
	c := newTestClient(svc, &fakeRegistrar{})
	got, err := c.Remix(context.Background(), testInput(t))
	if err != nil {
		t.Fatalf("Remix() err = %v; want nil", err)
	}
	if got.Path != Fallback {
		t.Fatalf("Path = %q; want %q", got.Path, Fallback)
	}
}

func TestFallbackDefaultRhythm(t *testing.T) {
	tests := []Response{
		EmptyResponse(),
		TextResponse("   "),
		{Kind: TextOnly, Text: " \n "},
		AudioResponse([]byte("odd"), "audio/mpeg"),
	}
	for _, analysis := range tests {
		t.Run(analysis.Kind.String(), func(t *testing.T) {
			svc := &fakeService{
				audio:    EmptyResponse(),
				analysis: analysis,
				speech:   AudioResponse([]byte("mp3"), "audio/mpeg"),
			}
			c := newTestClient(svc, &fakeRegistrar{})
			got, err := c.Remix(context.Background(), testInput(t))
			if err != nil {
				t.Fatalf("Remix() err = %v; want nil", err)
			}
			if len(svc.spoken) != 1 || svc.spoken[0] != DefaultRhythm {
				t.Fatalf("spoken = %q; want [%q]", svc.spoken, DefaultRhythm)
			}
			if !strings.Contains(got.Description, DefaultRhythm) {
				t.Fatalf("Description = %q; want default rhythm", got.Description)
			}
		})
	}
}

func TestFallbackTruncatesDescription(t *testing.T) {
	rhythm := strings.Repeat("bûm ", 30)
	svc := &fakeService{
		audio:    EmptyResponse(),
		analysis: TextResponse(rhythm),
		speech:   AudioResponse([]byte("mp3"), "audio/mpeg"),
	}
	c := newTestClient(svc, &fakeRegistrar{})
	got, err := c.Remix(context.Background(), testInput(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got.Description, "...") {
		t.Fatalf("Description = %q; want ellipsis", got.Description)
	}
	text := strings.TrimSuffix(strings.TrimPrefix(got.Description, FallbackDescription), "...")
	if n := len([]rune(text)); n != 50 {
		t.Fatalf("description text has %d runes; want 50", n)
	}
	if !strings.HasPrefix(strings.TrimSpace(rhythm), text) {
		t.Fatalf("description text %q is not a prefix of the rhythm", text)
	}
	if svc.spoken[0] != strings.TrimSpace(rhythm) {
		t.Fatalf("spoken text was truncated")
	}
}

func TestSpeechWithoutAudio(t *testing.T) {
	tests := []Response{
		EmptyResponse(),
		TextResponse("I can only write"),
	}
	for _, speech := range tests {
		t.Run(speech.Kind.String(), func(t *testing.T) {
			svc := &fakeService{
				audio:    EmptyResponse(),
				analysis: TextResponse("boom"),
				speech:   speech,
			}
			reg := &fakeRegistrar{}
			c := newTestClient(svc, reg)
			got, err := c.Remix(context.Background(), testInput(t))
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("Remix() err = %v; want %v", err, ErrGeneration)
			}
			if got != nil {
				t.Fatalf("Remix() = %+v; want nil", got)
			}
			if len(reg.data) != 0 {
				t.Fatalf("registered %d handles; want 0", len(reg.data))
			}
		})
	}
}

func TestTransportErrors(t *testing.T) {
	netErr := errors.New("connection reset by peer")
	tests := []struct {
		name        string
		svc         *fakeService
		wantStep    string
		wantAnalyze int
	}{
		{
			name:     "primary",
			svc:      &fakeService{audioErr: netErr},
			wantStep: "audio generation",
		},
		{
			name:        "analysis",
			svc:         &fakeService{audio: EmptyResponse(), analyErr: netErr},
			wantStep:    "analysis",
			wantAnalyze: 1,
		},
		{
			name:        "speech",
			svc:         &fakeService{audio: EmptyResponse(), analysis: TextResponse("x"), speakErr: netErr},
			wantStep:    "speech",
			wantAnalyze: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.svc, &fakeRegistrar{})
			_, err := c.Remix(context.Background(), testInput(t))
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("Remix() err = %v; want %v", err, ErrGeneration)
			}
			if !errors.Is(err, netErr) {
				t.Fatalf("Remix() err = %v; want cause %v", err, netErr)
			}
			var genErr *GenerationError
			if !errors.As(err, &genErr) || genErr.Step != tt.wantStep {
				t.Fatalf("Remix() step = %v; want %q", genErr, tt.wantStep)
			}
			if tt.svc.analyzeCalls != tt.wantAnalyze {
				t.Fatalf("analyze calls = %d; want %d", tt.svc.analyzeCalls, tt.wantAnalyze)
			}
			if tt.svc.audioCalls != 1 {
				t.Fatalf("audio calls = %d; want 1 (no retries)", tt.svc.audioCalls)
			}
		})
	}
}

func TestRegisterFailure(t *testing.T) {
	svc := &fakeService{audio: AudioResponse([]byte("x"), "audio/mpeg")}
	c := newTestClient(svc, &fakeRegistrar{err: errors.New("disk full")})
	_, err := c.Remix(context.Background(), testInput(t))
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("Remix() err = %v; want %v", err, ErrGeneration)
	}
}

func TestResponseConstructors(t *testing.T) {
	tests := []struct {
		resp Response
		want Kind
	}{
		{AudioResponse(nil, "audio/mpeg"), Empty},
		{AudioResponse([]byte{1}, "audio/mpeg"), AudioPayload},
		{TextResponse(""), Empty},
		{TextResponse("hi"), TextOnly},
		{EmptyResponse(), Empty},
	}
	for _, tt := range tests {
		if tt.resp.Kind != tt.want {
			t.Errorf("Kind = %v; want %v", tt.resp.Kind, tt.want)
		}
	}
}
