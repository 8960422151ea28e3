package remix

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/igolaizola/sonicremix"
	"github.com/igolaizola/sonicremix/pkg/app"
	"github.com/igolaizola/sonicremix/pkg/filestore"
	"github.com/igolaizola/sonicremix/pkg/handle"
	"github.com/igolaizola/sonicremix/pkg/sound"
	"github.com/igolaizola/sonicremix/pkg/storage"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

type Config struct {
	Debug   bool
	Backend sonicremix.Backend
	Lang    string
	Timeout time.Duration

	DBType string
	DBConn string
	FSType string
	FSConn string
	Cache  string

	Input  string
	Output string
	Wave   string
}

// Run remixes a local audio file and writes the result next to it.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Input == "" {
		return errors.New("remix: input file is required")
	}

	var store *storage.Store
	var history app.History
	if cfg.DBType != "" {
		s, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("remix: couldn't create orm store: %w", err)
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("remix: couldn't start orm store: %w", err)
		}
		defer s.Stop()
		store = s
		history = s
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Backend.Proxy, cfg.Debug, store)
	if err != nil {
		return fmt.Errorf("remix: couldn't create file storage: %w", err)
	}
	handles, err := handle.New(fs, cfg.Cache, cfg.Debug)
	if err != nil {
		return fmt.Errorf("remix: couldn't create handle store: %w", err)
	}
	remixer, err := sonicremix.NewRemixClient(ctx, &cfg.Backend, handles)
	if err != nil {
		return fmt.Errorf("remix: %w", err)
	}

	c := app.New(&app.Config{
		Debug:   cfg.Debug,
		Session: "cli",
		Remixer: remixer,
		Handles: handles,
		History: history,
		Lang:    app.Lang(cfg.Lang),
		Timeout: cfg.Timeout,
	})
	return run(ctx, cfg, c, handles)
}

type byteSource interface {
	Bytes(ctx context.Context, id string) ([]byte, *handle.Handle, error)
}

func run(ctx context.Context, cfg *Config, c *app.Controller, handles byteSource) error {
	defer c.Close(context.Background())

	// The declared type is sniffed from the content
	m, err := mimetype.DetectFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("remix: couldn't detect media type of %s: %w", cfg.Input, err)
	}
	f, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("remix: couldn't open %s: %w", cfg.Input, err)
	}
	err = c.Select(ctx, cfg.Input, m.String(), f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("remix: couldn't select %s: %w", cfg.Input, err)
	}

	if err := spin(cfg.Debug, func() error { return c.Remix(ctx) }); err != nil {
		return fmt.Errorf("remix: %s: %w", c.State().Message, err)
	}

	state := c.State()
	b, h, err := handles.Bytes(ctx, state.Result.Handle.ID)
	if err != nil {
		return fmt.Errorf("remix: couldn't read result: %w", err)
	}
	output := cfg.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(cfg.Input), c.DownloadName())
	}
	if err := os.WriteFile(output, b, 0644); err != nil {
		return fmt.Errorf("remix: couldn't write %s: %w", output, err)
	}
	fmt.Println(state.Result.Description)
	log.Printf("remix: %s saved to %s (%s, %s)\n", state.Result.Path, output, h.MediaType, humanSize(len(b)))

	if cfg.Wave == "" {
		return nil
	}
	a, err := sound.NewAnalyzerBytes(b, h.MediaType)
	if err != nil {
		return fmt.Errorf("remix: couldn't analyze result: %w", err)
	}
	img, err := a.PlotWave(filepath.Base(output))
	if err != nil {
		return fmt.Errorf("remix: couldn't plot wave: %w", err)
	}
	if err := os.WriteFile(cfg.Wave, img, 0644); err != nil {
		return fmt.Errorf("remix: couldn't write %s: %w", cfg.Wave, err)
	}
	return nil
}

// spin shows a spinner on interactive terminals while fn runs.
func spin(debug bool, fn func() error) error {
	if debug || !isatty.IsTerminal(os.Stderr.Fd()) {
		return fn()
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("remixing"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	errC := make(chan error, 1)
	go func() {
		errC <- fn()
	}()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errC:
			_ = bar.Finish()
			return err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func humanSize(n int) string {
	units := []string{"B", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := fmt.Sprintf("%.1f", v)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + units[i]
}
