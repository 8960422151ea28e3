package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrInvalidKind is returned when the declared media type is not audio.
	ErrInvalidKind = errors.New("audio: not an audio file")
	// ErrRead is returned when the file bytes couldn't be read.
	ErrRead = errors.New("audio: couldn't read file")
)

// Tags holds the optional metadata found in the file.
type Tags struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// Encoded is the transport-ready representation of a user file.
type Encoded struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Payload   string `json:"-"`
	Size      int    `json:"size"`
	Tags      *Tags  `json:"tags,omitempty"`
}

// Bytes decodes the base64 payload.
func (e *Encoded) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't decode payload: %w", err)
	}
	return b, nil
}

// IsAudio reports whether the declared media type is an audio type.
func IsAudio(mediaType string) bool {
	_, ok := essence(mediaType)
	return ok
}

func essence(mediaType string) (string, bool) {
	typ, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(typ, "audio/") || typ == "audio/" {
		return "", false
	}
	return typ, true
}

// Encode reads the file and returns its encoded representation.
// The media type is checked before anything is read.
func Encode(ctx context.Context, name, mediaType string, r io.Reader) (*Encoded, error) {
	typ, ok := essence(mediaType)
	if !ok {
		return nil, fmt.Errorf("%w: %q has media type %q", ErrInvalidKind, name, mediaType)
	}
	b, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrRead, name, err)
	}
	return &Encoded{
		Name:      filepath.Base(name),
		MediaType: typ,
		Payload:   base64.StdEncoding.EncodeToString(b),
		Size:      len(b),
		Tags:      readTags(b),
	}, nil
}

// EncodeFile encodes a local file. The declared media type is the sniffed
// content type, the extension is ignored.
func EncodeFile(ctx context.Context, path string) (*Encoded, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrRead, path, err)
	}
	if !IsAudio(m.String()) {
		return nil, fmt.Errorf("%w: %q has media type %q", ErrInvalidKind, path, m.String())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrRead, path, err)
	}
	defer f.Close()
	return Encode(ctx, path, m.String(), f)
}

func readTags(b []byte) *Tags {
	md, err := tag.ReadFrom(bytes.NewReader(b))
	if err != nil {
		return nil
	}
	t := &Tags{
		Title:  md.Title(),
		Artist: md.Artist(),
		Album:  md.Album(),
	}
	if *t == (Tags{}) {
		return nil
	}
	return t
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
