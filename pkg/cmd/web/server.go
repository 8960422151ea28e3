package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/sonicremix/pkg/app"
	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/handle"
	"github.com/igolaizola/sonicremix/pkg/hub"
	"github.com/igolaizola/sonicremix/pkg/sound"
	"github.com/igolaizola/sonicremix/pkg/sound/ffmpeg"
	"github.com/igolaizola/sonicremix/pkg/storage"
	"golang.org/x/text/language"
)

// maxUpload is the maximum size of an uploaded file.
const maxUpload = 100 << 20

type handleStore interface {
	app.Handles
	Path(ctx context.Context, id string) (string, *handle.Handle, error)
}

type historyStore interface {
	app.History
	ListRemixes(ctx context.Context, page, size int, orderBy string, filter ...storage.Filter) ([]*storage.Remix, error)
}

type serverConfig struct {
	ctx         context.Context
	debug       bool
	lang        language.Tag
	remixer     app.Remixer
	handles     handleStore
	store       *storage.Store
	hub         *hub.Hub
	credentials map[string]string
	timeout     time.Duration
	transcode   bool
}

type server struct {
	ctx         context.Context
	debug       bool
	lang        language.Tag
	handles     handleStore
	history     historyStore
	hub         *hub.Hub
	sessions    *app.Sessions
	credentials map[string]string
	transcode   bool
}

func newServer(cfg *serverConfig) *server {
	s := &server{
		ctx:         cfg.ctx,
		debug:       cfg.debug,
		lang:        cfg.lang,
		handles:     cfg.handles,
		hub:         cfg.hub,
		credentials: cfg.credentials,
		transcode:   cfg.transcode,
	}
	// Avoid a typed nil inside the interface
	var history app.History
	if cfg.store != nil {
		s.history = cfg.store
		history = cfg.store
	}
	s.sessions = app.NewSessions(cfg.debug, func(id string) *app.Config {
		return &app.Config{
			Debug:   cfg.debug,
			Remixer: cfg.remixer,
			Handles: cfg.handles,
			History: history,
			Lang:    cfg.lang,
			Timeout: cfg.timeout,
			Notify: func(snap app.Snapshot) {
				if s.hub == nil {
					return
				}
				s.hub.Broadcast(hub.Event{Session: id, Type: hub.TypeState, Data: snap})
			},
		}
	})
	return s
}

func (s *server) router() http.Handler {
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	// Add BasicAuth middleware
	if len(s.credentials) > 0 {
		mux.Use(middleware.BasicAuth("private", s.credentials))
	}

	// Static content
	static, err := staticFS()
	if err != nil {
		panic(fmt.Sprintf("web: couldn't load static content: %v", err))
	}
	mux.Get("/*", http.FileServer(http.FS(static)).ServeHTTP)

	mux.Route("/api", func(r chi.Router) {
		if s.debug {
			r.Use(middleware.Logger)
		}

		// Long-lived connection
		r.Get("/sessions/{sid}/events", s.events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/sessions", s.newSession)
			r.Get("/sessions/{sid}", s.session)
			r.Delete("/sessions/{sid}", s.deleteSession)
			r.Post("/sessions/{sid}/input", s.input)
			r.Post("/sessions/{sid}/remix", s.remix)
			r.Post("/sessions/{sid}/reset", s.reset)
			r.Post("/sessions/{sid}/sync", s.sync)
			r.Post("/sessions/{sid}/playback", s.playback)
			r.Get("/sessions/{sid}/download", s.download)

			// Handles are only visible to the session that holds them
			r.Get("/sessions/{sid}/handles/{id}", s.audio)
			r.Get("/sessions/{sid}/handles/{id}/levels", s.levels)
			r.Get("/sessions/{sid}/handles/{id}/wave.jpg", s.wave)
			r.Get("/sessions/{sid}/handles/{id}/rms.jpg", s.rms)

			r.Get("/history", s.listHistory)
		})
	})
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResponse{Error: msg})
}

func (s *server) controller(w http.ResponseWriter, r *http.Request) (*app.Controller, bool) {
	c, err := s.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return c, true
}

func (s *server) newSession(w http.ResponseWriter, r *http.Request) {
	_, c := s.sessions.New()
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *server) session(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "sid")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) input(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("couldn't read file: %v", err))
		return
	}
	defer file.Close()

	err = c.Select(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, c.Snapshot())
	case errors.Is(err, audio.ErrInvalidKind):
		writeError(w, http.StatusUnsupportedMediaType, app.NotAudioMessage(s.lang))
	case errors.Is(err, audio.ErrRead):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("couldn't read file: %v", err))
	case errors.Is(err, app.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Println("web: couldn't select input:", err)
		writeError(w, http.StatusInternalServerError, "couldn't select input")
	}
}

func (s *server) remix(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	// The remix outlives the request
	if err := c.Go(s.ctx); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	c.Reset(r.Context())
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *server) sync(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	cue, err := c.SyncPlay()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(hub.Event{Session: chi.URLParam(r, "sid"), Type: hub.TypeSyncPlay, Data: cue})
	}
	writeJSON(w, http.StatusOK, cue)
}

type playbackRequest struct {
	Track app.Track `json:"track"`
	Event string    `json:"event"`
}

func (s *server) playback(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("couldn't decode request: %v", err))
		return
	}
	if err := c.Playback(req.Track, req.Event); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) events(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	first := &hub.Event{Session: chi.URLParam(r, "sid"), Type: hub.TypeState, Data: c.Snapshot()}
	if err := s.hub.Serve(w, r, chi.URLParam(r, "sid"), first); err != nil {
		log.Println("web: couldn't upgrade connection:", err)
	}
}

func (s *server) download(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	state := c.State()
	if state.Result == nil || state.Result.Handle == nil {
		writeError(w, http.StatusNotFound, "no remix to download")
		return
	}
	name := c.DownloadName()
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	s.serveHandle(w, r, state.Result.Handle.ID)
}

// handleID returns the requested handle if the session owns it.
func (s *server) handleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, ok := s.controller(w, r)
	if !ok {
		return "", false
	}
	id := chi.URLParam(r, "id")
	if !c.Owns(id) {
		writeError(w, http.StatusNotFound, "handle not found")
		return "", false
	}
	return id, true
}

func (s *server) audio(w http.ResponseWriter, r *http.Request) {
	id, ok := s.handleID(w, r)
	if !ok {
		return
	}
	s.serveHandle(w, r, id)
}

func (s *server) serveHandle(w http.ResponseWriter, r *http.Request, id string) {
	path, h, err := s.handles.Path(r.Context(), id)
	if errors.Is(err, handle.ErrNotFound) {
		writeError(w, http.StatusNotFound, "handle not found")
		return
	}
	if err != nil {
		log.Println("web: couldn't resolve handle:", err)
		writeError(w, http.StatusInternalServerError, "couldn't resolve handle")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		log.Println("web: couldn't open handle:", err)
		writeError(w, http.StatusInternalServerError, "couldn't open handle")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", h.MediaType)
	http.ServeContent(w, r, h.Name, h.CreatedAt, f)
}

func (s *server) analyzer(w http.ResponseWriter, r *http.Request) (*sound.Analyzer, *handle.Handle, bool) {
	id, ok := s.handleID(w, r)
	if !ok {
		return nil, nil, false
	}
	path, h, err := s.handles.Path(r.Context(), id)
	if errors.Is(err, handle.ErrNotFound) {
		writeError(w, http.StatusNotFound, "handle not found")
		return nil, nil, false
	}
	if err != nil {
		log.Println("web: couldn't resolve handle:", err)
		writeError(w, http.StatusInternalServerError, "couldn't resolve handle")
		return nil, nil, false
	}
	a, err := sound.NewAnalyzer(path, h.MediaType)
	if errors.Is(err, sound.ErrUnsupported) && s.transcode {
		a, err = s.transcoded(r.Context(), path)
	}
	if errors.Is(err, sound.ErrUnsupported) {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return nil, nil, false
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, nil, false
	}
	return a, h, true
}

// transcoded analyzes formats that can't be decoded natively.
func (s *server) transcoded(ctx context.Context, path string) (*sound.Analyzer, error) {
	f, err := os.CreateTemp("", "sonicremix-*.wav")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't create temp file: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	defer os.Remove(tmp)
	if err := ffmpeg.ToWAV(ctx, path, tmp, 0); err != nil {
		return nil, err
	}
	return sound.NewAnalyzer(tmp, "audio/wav")
}

type levelsResponse struct {
	Duration float64   `json:"duration"`
	Levels   []float64 `json:"levels"`
}

func (s *server) levels(w http.ResponseWriter, r *http.Request) {
	a, _, ok := s.analyzer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, &levelsResponse{
		Duration: a.Duration().Seconds(),
		Levels:   a.Levels(sound.Bars),
	})
}

func (s *server) wave(w http.ResponseWriter, r *http.Request) {
	a, h, ok := s.analyzer(w, r)
	if !ok {
		return
	}
	b, err := a.PlotWave(h.Name)
	if err != nil {
		log.Println("web: couldn't plot wave:", err)
		writeError(w, http.StatusInternalServerError, "couldn't plot wave")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(b)
}

func (s *server) rms(w http.ResponseWriter, r *http.Request) {
	a, _, ok := s.analyzer(w, r)
	if !ok {
		return
	}
	b, err := a.PlotRMS()
	if err != nil {
		log.Println("web: couldn't plot rms:", err)
		writeError(w, http.StatusInternalServerError, "couldn't plot rms")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(b)
}

func (s *server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 100
	}
	var filters []storage.Filter
	if v := r.URL.Query().Get("failed"); v != "" {
		filters = append(filters, storage.Where("failed = ?", v == "true"))
	}
	if v := r.URL.Query().Get("path"); v != "" {
		filters = append(filters, storage.Where("path = ?", v))
	}
	remixes, err := s.history.ListRemixes(r.Context(), page, size, "created_at desc", filters...)
	if err != nil {
		log.Println("web: couldn't list remixes:", err)
		writeError(w, http.StatusInternalServerError, "couldn't list remixes")
		return
	}
	writeJSON(w, http.StatusOK, remixes)
}
