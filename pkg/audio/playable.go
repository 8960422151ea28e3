package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"os"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const defaultPCMRate = 24000

// Playable converts generated audio into a format that players understand.
// Raw 16-bit PCM is wrapped into WAV, everything else is returned as is.
func Playable(data []byte, mediaType string) ([]byte, string, error) {
	if mediaType == "" {
		// Models that don't label their output return mp3
		return data, "audio/mpeg", nil
	}
	typ, params, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, "", fmt.Errorf("audio: invalid media type %q: %w", mediaType, err)
	}
	switch strings.ToLower(typ) {
	case "audio/l16", "audio/pcm":
	default:
		return data, typ, nil
	}

	rate := defaultPCMRate
	if v, ok := params["rate"]; ok {
		rate, err = strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return nil, "", fmt.Errorf("audio: invalid pcm rate %q", v)
		}
	}
	channels := 1
	if v, ok := params["channels"]; ok {
		channels, err = strconv.Atoi(v)
		if err != nil || channels <= 0 {
			return nil, "", fmt.Errorf("audio: invalid pcm channels %q", v)
		}
	}
	b, err := pcmToWAV(data, rate, channels)
	if err != nil {
		return nil, "", err
	}
	return b, "audio/wav", nil
}

func pcmToWAV(data []byte, rate, channels int) ([]byte, error) {
	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}

	// The wav encoder needs to seek back to write the header sizes
	f, err := os.CreateTemp("", "sonicremix-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: couldn't encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: couldn't close wav encoder: %w", err)
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't read wav: %w", err)
	}
	return b, nil
}

// Extension returns the file extension used to store the media type.
func Extension(mediaType string) string {
	typ, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return ".bin"
	}
	switch strings.ToLower(typ) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/aac":
		return ".aac"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "audio/l16", "audio/pcm":
		return ".pcm"
	}
	return ".bin"
}
