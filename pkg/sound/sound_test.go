package sound

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/igolaizola/sonicremix/pkg/audio"
)

// testWAV returns one second of a 440Hz tone followed by one second of
// silence.
func testWAV(t *testing.T) []byte {
	t.Helper()
	const rate = 8000
	pcm := make([]byte, 2*rate*2)
	for i := 0; i < rate; i++ {
		v := int16(math.Sin(2*math.Pi*440*float64(i)/rate) * 16000)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	b, typ, err := audio.Playable(pcm, "audio/L16;rate=8000")
	if err != nil {
		t.Fatal(err)
	}
	if typ != "audio/wav" {
		t.Fatalf("Playable() type = %q; want audio/wav", typ)
	}
	return b
}

func TestWAVLevels(t *testing.T) {
	a, err := NewAnalyzerBytes(testWAV(t), "audio/wav")
	if err != nil {
		t.Fatalf("NewAnalyzerBytes() err = %v; want nil", err)
	}
	if got := a.Duration().Round(10 * time.Millisecond); got != 2*time.Second {
		t.Fatalf("Duration() = %s; want 2s", got)
	}
	levels := a.Levels(Bars)
	if len(levels) != Bars {
		t.Fatalf("len(Levels()) = %d; want %d", len(levels), Bars)
	}
	for i, l := range levels {
		if i < Bars/2 && l < 0.9 {
			t.Errorf("Levels()[%d] = %f; want loud", i, l)
		}
		if i >= Bars/2 && l != 0 {
			t.Errorf("Levels()[%d] = %f; want silence", i, l)
		}
	}
}

func TestLevelsEdgeCases(t *testing.T) {
	a := &Analyzer{rate: 8000}
	if got := a.Levels(Bars); len(got) != Bars {
		t.Fatalf("len(Levels()) = %d; want %d", len(got), Bars)
	}
	if got := a.Levels(0); len(got) != 0 {
		t.Fatalf("len(Levels(0)) = %d; want 0", len(got))
	}
	// More bars than samples
	a = &Analyzer{rate: 8000, mono: []float64{0.5, -0.5, 0.25}}
	got := a.Levels(5)
	var max float64
	for _, l := range got {
		max = math.Max(max, l)
	}
	if max != 1 {
		t.Fatalf("Levels() max = %f; want 1", max)
	}
}

func TestPlotWave(t *testing.T) {
	a, err := NewAnalyzerBytes(testWAV(t), "audio/wav")
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.PlotWave("remix")
	if err != nil {
		t.Fatalf("PlotWave() err = %v; want nil", err)
	}
	if !bytes.HasPrefix(b, []byte{0xff, 0xd8}) {
		t.Fatalf("PlotWave() is not a jpeg")
	}
}

func TestUnsupported(t *testing.T) {
	for _, typ := range []string{"audio/ogg", "text/plain", ""} {
		if _, err := NewAnalyzerBytes([]byte("data"), typ); !errors.Is(err, ErrUnsupported) {
			t.Errorf("NewAnalyzerBytes(%q) err = %v; want %v", typ, err, ErrUnsupported)
		}
	}
}

func TestInvalidData(t *testing.T) {
	if _, err := NewAnalyzerBytes([]byte("not a wav"), "audio/wav"); err == nil {
		t.Fatal("NewAnalyzerBytes() err = nil; want error")
	}
}
