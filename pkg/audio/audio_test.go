package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type noReader struct {
	t *testing.T
}

func (r *noReader) Read(p []byte) (int, error) {
	r.t.Fatal("Read() called on rejected file")
	return 0, nil
}

type failReader struct{}

func (failReader) Read(p []byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestEncodeRejectsNonAudio(t *testing.T) {
	tests := []string{
		"text/plain",
		"text/plain; charset=utf-8",
		"video/mp4",
		"application/octet-stream",
		"",
		"audio",
	}
	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			_, err := Encode(context.Background(), "song.mp3", tt, &noReader{t: t})
			if !errors.Is(err, ErrInvalidKind) {
				t.Fatalf("Encode() err = %v; want %v", err, ErrInvalidKind)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		size      int
	}{
		{"empty.wav", "audio/wav", 0},
		{"one.mp3", "audio/mpeg", 1},
		{"odd.ogg", "audio/ogg", 1001},
		{"big.wav", "audio/wav; codecs=1", 3 * 44100 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}
			enc, err := Encode(context.Background(), "/tmp/"+tt.name, tt.mediaType, bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Encode() err = %v; want nil", err)
			}
			got, err := enc.Bytes()
			if err != nil {
				t.Fatalf("Bytes() err = %v; want nil", err)
			}
			if len(got) != len(data) {
				t.Fatalf("len(Bytes()) = %d; want %d", len(got), len(data))
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("Bytes() differs from input")
			}
			if enc.Size != tt.size {
				t.Errorf("Size = %d; want %d", enc.Size, tt.size)
			}
			if enc.Name != tt.name {
				t.Errorf("Name = %q; want %q", enc.Name, tt.name)
			}
		})
	}
}

func TestEncodeMediaType(t *testing.T) {
	enc, err := Encode(context.Background(), "a.wav", "Audio/WAV; rate=44100", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Encode() err = %v; want nil", err)
	}
	if enc.MediaType != "audio/wav" {
		t.Fatalf("MediaType = %q; want %q", enc.MediaType, "audio/wav")
	}
}

func TestEncodeReadFailure(t *testing.T) {
	_, err := Encode(context.Background(), "a.mp3", "audio/mpeg", failReader{})
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Encode() err = %v; want %v", err, ErrRead)
	}
}

func TestEncodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Encode(ctx, "a.mp3", "audio/mpeg", bytes.NewReader([]byte("data")))
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Encode() err = %v; want %v", err, ErrRead)
	}
}

func TestEncodeFileRenamedText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.mp3")
	if err := os.WriteFile(path, []byte("these are my notes, not a song\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := EncodeFile(context.Background(), path)
	if !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("EncodeFile() err = %v; want %v", err, ErrInvalidKind)
	}
}

func TestEncodeFileWAV(t *testing.T) {
	pcm := make([]byte, 3*8000*2)
	for i := 0; i < len(pcm)/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16((i%64-32)*512)))
	}
	wav, typ, err := Playable(pcm, "audio/L16;codec=pcm;rate=8000")
	if err != nil {
		t.Fatalf("Playable() err = %v; want nil", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, wav, 0644); err != nil {
		t.Fatal(err)
	}
	enc, err := EncodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("EncodeFile() err = %v; want nil", err)
	}
	if enc.MediaType != typ {
		t.Errorf("MediaType = %q; want %q", enc.MediaType, typ)
	}
	if enc.Size != len(wav) {
		t.Errorf("Size = %d; want %d", enc.Size, len(wav))
	}
}

func TestPlayable(t *testing.T) {
	pcm := []byte{0, 0, 1, 0, 255, 255, 0, 128}
	tests := []struct {
		mediaType string
		wantType  string
		wantWAV   bool
	}{
		{"audio/L16;codec=pcm;rate=24000", "audio/wav", true},
		{"audio/pcm", "audio/wav", true},
		{"audio/L16;rate=16000;channels=2", "audio/wav", true},
		{"audio/mpeg", "audio/mpeg", false},
		{"audio/wav", "audio/wav", false},
		{"", "audio/mpeg", false},
	}
	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			got, typ, err := Playable(pcm, tt.mediaType)
			if err != nil {
				t.Fatalf("Playable() err = %v; want nil", err)
			}
			if typ != tt.wantType {
				t.Errorf("Playable() type = %q; want %q", typ, tt.wantType)
			}
			isWAV := len(got) > 44 && string(got[0:4]) == "RIFF" && string(got[8:12]) == "WAVE"
			if isWAV != tt.wantWAV {
				t.Errorf("Playable() wav = %v; want %v", isWAV, tt.wantWAV)
			}
			if !tt.wantWAV && !bytes.Equal(got, pcm) {
				t.Errorf("Playable() modified passthrough data")
			}
		})
	}
}

func TestPlayableInvalidRate(t *testing.T) {
	if _, _, err := Playable([]byte{0, 0}, "audio/L16;rate=fast"); err == nil {
		t.Fatal("Playable() err = nil; want error")
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"audio/mpeg":           ".mp3",
		"audio/wav":            ".wav",
		"audio/x-wav":          ".wav",
		"audio/ogg; codecs=x":  ".ogg",
		"audio/L16;rate=24000": ".pcm",
		"audio/unknown":        ".bin",
		"":                     ".bin",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q; want %q", in, got, want)
		}
	}
}
