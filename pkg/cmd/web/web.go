package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/igolaizola/sonicremix"
	"github.com/igolaizola/sonicremix/pkg/app"
	"github.com/igolaizola/sonicremix/pkg/filestore"
	"github.com/igolaizola/sonicremix/pkg/handle"
	"github.com/igolaizola/sonicremix/pkg/hub"
	"github.com/igolaizola/sonicremix/pkg/ngrok"
	"github.com/igolaizola/sonicremix/pkg/sound/ffmpeg"
	"github.com/igolaizola/sonicremix/pkg/storage"
	"github.com/pkg/browser"
)

type Config struct {
	Debug   bool
	Backend sonicremix.Backend
	Lang    string

	DBType string
	DBConn string
	FSType string
	FSConn string
	Cache  string

	Addr        string
	Credentials map[string]string
	Open        bool
	SessionTTL  time.Duration
	Timeout     time.Duration
	FFmpeg      string
	Ngrok       bool
}

//go:embed static/*
var staticContent embed.FS

// Serve starts the remix web service.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	// History is optional
	var store *storage.Store
	if cfg.DBType != "" {
		s, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("web: couldn't create orm store: %w", err)
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("web: couldn't start orm store: %w", err)
		}
		defer s.Stop()
		store = s
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Backend.Proxy, cfg.Debug, store)
	if err != nil {
		return fmt.Errorf("web: couldn't create file storage: %w", err)
	}
	cache := cfg.Cache
	if cache == "" {
		cache = filepath.Join(".cache", "handles")
	}
	handles, err := handle.New(fs, cache, cfg.Debug)
	if err != nil {
		return fmt.Errorf("web: couldn't create handle store: %w", err)
	}

	remixer, err := sonicremix.NewRemixClient(ctx, &cfg.Backend, handles)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}

	// Formats other than mp3 and wav are visualized through ffmpeg
	var transcode bool
	if cfg.FFmpeg != "" {
		ffmpeg.BinPath = cfg.FFmpeg
		transcode = ffmpeg.Available()
		if !transcode {
			log.Printf("web: ffmpeg not found at %s, only mp3 and wav will be visualized\n", cfg.FFmpeg)
		}
	}

	events := hub.New(cfg.Debug)
	go events.Run(ctx)

	srv := newServer(&serverConfig{
		ctx:         ctx,
		debug:       cfg.Debug,
		lang:        app.Lang(cfg.Lang),
		remixer:     remixer,
		handles:     handles,
		store:       store,
		hub:         events,
		credentials: cfg.Credentials,
		timeout:     cfg.Timeout,
		transcode:   transcode,
	})
	defer srv.sessions.Close(context.Background())

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: srv.router(),
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("web: starting server on %s\n", note)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web: failed to start server: %v\n", err)
			cancel()
		}
	}()

	if cfg.Open {
		u := fmt.Sprintf("http://localhost:%d", port)
		if host != "" && host != "0.0.0.0" {
			u = fmt.Sprintf("http://%s:%d", host, port)
		}
		if err := browser.OpenURL(u); err != nil {
			log.Printf("web: couldn't open browser: %v\n", err)
		}
	}

	if cfg.Ngrok {
		go func() {
			u, err := ngrok.Run(ctx, strconv.Itoa(port))
			if err != nil {
				log.Printf("web: %v\n", err)
				return
			}
			log.Printf("web: public url %s\n", u)
		}()
	}

	// Release the handles of abandoned sessions
	ttl := cfg.SessionTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("web: couldn't shutdown server: %v\n", err)
			}
			return nil
		case <-ticker.C:
			n := srv.sessions.Sweep(ctx, ttl)
			debug("web: %d sessions swept, %d handles alive", n, handles.Len())
		}
	}
}

func staticFS() (iofs.FS, error) {
	return iofs.Sub(staticContent, "static")
}
