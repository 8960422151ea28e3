package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// BinPath is the path to the ffmpeg binary
var BinPath = "ffmpeg"

// ErrNotFound is returned when the ffmpeg binary isn't available.
var ErrNotFound = errors.New("ffmpeg: binary not found")

// Available reports whether the ffmpeg binary can be found.
func Available() bool {
	_, err := exec.LookPath(BinPath)
	return err == nil
}

// ToWAV converts any audio file that ffmpeg understands to 16-bit mono WAV.
func ToWAV(ctx context.Context, input, output string, rate int) error {
	if !Available() {
		return fmt.Errorf("%w: %s", ErrNotFound, BinPath)
	}
	if rate <= 0 {
		rate = 22050
	}

	// Use a temporary file so a failed conversion never leaves a partial output
	tmp := fmt.Sprintf("%s.tmp.wav", output)
	cmd := exec.CommandContext(ctx, BinPath, "-y", "-loglevel", "error", "-i", input,
		"-ac", "1", "-ar", strconv.Itoa(rate), "-acodec", "pcm_s16le", "-f", "wav", tmp)
	data, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(tmp)
		msg := string(data)
		return fmt.Errorf("ffmpeg: couldn't convert to wav: %w: %s", err, msg)
	}

	// Move the temporary file to the output path
	_ = os.Remove(output)
	if err := os.Rename(tmp, output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg: couldn't rename temporary file: %w", err)
	}
	return nil
}
