package sound

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrUnsupported = errors.New("sound: unsupported media type")

// Bars is the number of visualizer bars.
const Bars = 20

type Analyzer struct {
	mono     []float64
	rate     int
	duration time.Duration
}

// NewAnalyzer decodes the mp3 or wav file.
func NewAnalyzer(path, mediaType string) (*Analyzer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't read file: %w", err)
	}
	return NewAnalyzerBytes(b, mediaType)
}

// NewAnalyzerBytes decodes mp3 or wav data.
func NewAnalyzerBytes(b []byte, mediaType string) (*Analyzer, error) {
	typ, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, mediaType)
	}
	var mono []float64
	var rate int
	switch strings.ToLower(typ) {
	case "audio/mpeg", "audio/mp3":
		mono, rate, err = decodeMP3(b)
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		mono, rate, err = decodeWAV(b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, mediaType)
	}
	if err != nil {
		return nil, err
	}
	duration := time.Duration(float64(len(mono)) / float64(rate) * float64(time.Second))
	return &Analyzer{
		mono:     mono,
		rate:     rate,
		duration: duration,
	}, nil
}

func decodeMP3(b []byte) ([]float64, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't decode mp3: %w", err)
	}
	// Output is always 16-bit little endian stereo
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't read sample: %w", err)
	}
	mono := make([]float64, len(pcm)/4)
	for i := range mono {
		left := int16(pcm[i*4]) | int16(pcm[i*4+1])<<8
		right := int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8
		mono[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}
	return mono, decoder.SampleRate(), nil
}

func decodeWAV(b []byte) ([]float64, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(b))
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("sound: invalid wav file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't decode wav: %w", err)
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := int(decoder.BitDepth)
	if depth < 8 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))
	mono := make([]float64, len(buf.Data)/channels)
	for i := range mono {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		mono[i] = sum / float64(channels) / scale
	}
	rate := int(decoder.SampleRate)
	if rate == 0 {
		return nil, 0, errors.New("sound: wav without sample rate")
	}
	return mono, rate, nil
}

func (a *Analyzer) Duration() time.Duration {
	return a.duration
}

func (a *Analyzer) Resample(windowSize time.Duration) []float64 {
	samples := a.mono
	windowLength := a.windowLength(windowSize)

	var resampled []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[i:end]
		var min, max float64
		for _, v := range window {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		resampled = append(resampled, min)
		resampled = append(resampled, max)
	}
	return resampled
}

func (a *Analyzer) RMS(windowSize time.Duration) []float64 {
	samples := a.mono
	windowLength := a.windowLength(windowSize)

	var rms []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		rms = append(rms, calculateRMS(samples[i:end]))
	}
	return rms
}

func (a *Analyzer) windowLength(windowSize time.Duration) int {
	n := int(float64(a.rate) * windowSize.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

// Levels splits the audio in n segments and returns their loudness scaled
// to the loudest one, between 0 and 1.
func (a *Analyzer) Levels(n int) []float64 {
	levels := make([]float64, n)
	if n <= 0 || len(a.mono) == 0 {
		return levels
	}
	var max float64
	for i := range levels {
		start := i * len(a.mono) / n
		end := (i + 1) * len(a.mono) / n
		if end <= start {
			continue
		}
		levels[i] = calculateRMS(a.mono[start:end])
		if levels[i] > max {
			max = levels[i]
		}
	}
	if max == 0 {
		return levels
	}
	for i := range levels {
		levels[i] /= max
	}
	return levels
}

func calculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var squareSum float64
	for _, sample := range samples {
		squareSum += sample * sample
	}
	meanSquare := squareSum / float64(len(samples))
	return math.Sqrt(meanSquare)
}

func (a *Analyzer) PlotRMS() ([]byte, error) {
	window := 50 * time.Millisecond
	rms := a.RMS(window)
	return createPlot("rms", rms, 0, 1, window.Seconds(), 0.01)
}

func (a *Analyzer) PlotWave(name string) ([]byte, error) {
	window := 50 * time.Millisecond
	resampled := a.Resample(window)
	// Two values per window
	return createPlot(name, resampled, -1, 1, window.Seconds()/2, 0.00)
}

func createPlot(name string, data []float64, min, max float64, step float64, line float64) ([]byte, error) {
	p := plot.New()

	// Set Y-axis limits
	p.Y.Min = min
	p.Y.Max = max

	d := time.Duration(float64(len(data)) * step * float64(time.Second)).Round(time.Second)
	p.Title.Text = fmt.Sprintf("%s %s", name, d)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "data"

	pts := make(plotter.XYs, len(data))
	for i, v := range data {
		pts[i].X = float64(i) * step
		pts[i].Y = v
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create line plotter: %w", err)
	}
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)

	// Red line at y = N
	if line > 0 {
		hLine := plotter.NewFunction(func(x float64) float64 { return line })
		hLine.Color = color.RGBA{R: 255, A: 255}
		p.Add(hLine)
	}

	c, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, "jpeg")
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("sound: couldn't write plot: %w", err)
	}
	return buf.Bytes(), nil
}
