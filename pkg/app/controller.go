// Package app holds the application state machine and the controller that
// owns it for one user session.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/handle"
	"github.com/igolaizola/sonicremix/pkg/remix"
	"github.com/igolaizola/sonicremix/pkg/storage"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
)

var (
	ErrNothingToPlay   = errors.New("app: nothing to play")
	ErrInvalidPlayback = errors.New("app: invalid playback signal")
)

type Remixer interface {
	Remix(ctx context.Context, enc *audio.Encoded) (*remix.Result, error)
}

type Handles interface {
	Register(ctx context.Context, name, mediaType string, data []byte) (*handle.Handle, error)
	Release(ctx context.Context, id string) error
}

type History interface {
	SetRemix(ctx context.Context, r *storage.Remix) error
}

type Track string

const (
	Original Track = "original"
	Remixed  Track = "remix"
)

type Config struct {
	Debug   bool
	Session string
	Remixer Remixer
	Handles Handles
	// History is optional.
	History History
	Lang    language.Tag
	// Timeout limits the remix request, zero means no limit.
	Timeout time.Duration
	// Notify is called with a snapshot after every change.
	Notify func(Snapshot)
}

type Controller struct {
	cfg     *Config
	lck     sync.Mutex
	state   State
	epoch   int
	playing map[Track]bool
	updated time.Time
}

func New(cfg *Config) *Controller {
	return &Controller{
		cfg:     cfg,
		state:   State{Phase: Idle},
		playing: map[Track]bool{},
		updated: time.Now(),
	}
}

func (c *Controller) debug(format string, args ...any) {
	if !c.cfg.Debug {
		return
	}
	format += "\n"
	log.Printf(format, args...)
}

// Select encodes the file and makes it the current input. Non-audio files
// are rejected with audio.ErrInvalidKind before anything is read and the
// state doesn't change.
func (c *Controller) Select(ctx context.Context, name, mediaType string, r io.Reader) error {
	enc, err := audio.Encode(ctx, name, mediaType, r)
	if err != nil {
		return err
	}
	data, err := enc.Bytes()
	if err != nil {
		return err
	}
	h, err := c.cfg.Handles.Register(ctx, enc.Name, enc.MediaType, data)
	if err != nil {
		return fmt.Errorf("app: couldn't register input: %w", err)
	}

	c.lck.Lock()
	prev := c.state
	next, err := Select(c.state, &Input{Audio: enc, Handle: h})
	if err != nil {
		c.lck.Unlock()
		c.release(ctx, h)
		return err
	}
	c.state = next
	c.playing = map[Track]bool{}
	c.touch()
	snap := c.snapshot()
	c.lck.Unlock()

	if prev.Input != nil {
		c.release(ctx, prev.Input.Handle)
	}
	c.debug("app: %s selected %s (%s, %d bytes)", c.cfg.Session, enc.Name, enc.MediaType, enc.Size)
	c.notify(snap)
	return nil
}

// Remix runs the remix of the current input and blocks until it finishes.
// Only one remix may run at a time.
func (c *Controller) Remix(ctx context.Context) error {
	epoch, enc, err := c.start()
	if err != nil {
		return err
	}
	return c.run(ctx, epoch, enc)
}

// Go starts the remix and runs it in the background. It fails right away
// if the remix can't be started.
func (c *Controller) Go(ctx context.Context) error {
	epoch, enc, err := c.start()
	if err != nil {
		return err
	}
	go func() {
		_ = c.run(ctx, epoch, enc)
	}()
	return nil
}

func (c *Controller) start() (int, *audio.Encoded, error) {
	c.lck.Lock()
	next, err := Start(c.state)
	if err != nil {
		c.lck.Unlock()
		return 0, nil, err
	}
	c.state = next
	c.touch()
	epoch := c.epoch
	snap := c.snapshot()
	c.lck.Unlock()
	c.notify(snap)
	return epoch, next.Input.Audio, nil
}

func (c *Controller) run(ctx context.Context, epoch int, enc *audio.Encoded) error {
	var err error
	var next State
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	result, rerr := c.cfg.Remixer.Remix(ctx, enc)
	elapsed := time.Since(start)
	if rerr != nil {
		log.Printf("app: %s remix of %s failed: %v\n", c.cfg.Session, enc.Name, rerr)
	}

	c.lck.Lock()
	if epoch != c.epoch {
		c.lck.Unlock()
		c.debug("app: %s discarding stale remix", c.cfg.Session)
		if result != nil {
			c.release(context.Background(), result.Handle)
		}
		return nil
	}
	if rerr != nil {
		next, err = Fail(c.state, RemixFailedMessage(c.cfg.Lang))
	} else {
		next, err = Succeed(c.state, result)
	}
	if err != nil {
		c.lck.Unlock()
		return err
	}
	c.state = next
	c.touch()
	snap := c.snapshot()
	c.lck.Unlock()

	c.record(ctx, enc, result, rerr, elapsed)
	c.notify(snap)
	return rerr
}

// Reset releases every handle and returns to idle. A remix still running is
// discarded when it finishes.
func (c *Controller) Reset(ctx context.Context) {
	c.lck.Lock()
	prev := c.state
	c.state = Reset(c.state)
	c.epoch++
	c.playing = map[Track]bool{}
	c.touch()
	snap := c.snapshot()
	c.lck.Unlock()

	c.releaseState(ctx, prev)
	c.notify(snap)
}

// Close releases every handle without notifying.
func (c *Controller) Close(ctx context.Context) {
	c.lck.Lock()
	prev := c.state
	c.state = Reset(c.state)
	c.epoch++
	c.lck.Unlock()
	c.releaseState(ctx, prev)
}

// Cue tells which handles must be restarted and played together.
type Cue struct {
	Original string `json:"original"`
	Remix    string `json:"remix"`
}

// SyncPlay restarts both the original and the remix. It doesn't change the
// phase.
func (c *Controller) SyncPlay() (*Cue, error) {
	c.lck.Lock()
	s := c.state
	if s.Phase != Ready || s.Input == nil || s.Input.Handle == nil || s.Result == nil || s.Result.Handle == nil {
		c.lck.Unlock()
		return nil, ErrNothingToPlay
	}
	c.playing[Original] = true
	c.playing[Remixed] = true
	c.touch()
	snap := c.snapshot()
	c.lck.Unlock()

	c.notify(snap)
	return &Cue{Original: s.Input.Handle.ID, Remix: s.Result.Handle.ID}, nil
}

// Playback records play, pause and ended signals of a track.
func (c *Controller) Playback(track Track, event string) error {
	if track != Original && track != Remixed {
		return fmt.Errorf("%w: track %q", ErrInvalidPlayback, track)
	}
	var playing bool
	switch event {
	case "play":
		playing = true
	case "pause", "ended":
	default:
		return fmt.Errorf("%w: event %q", ErrInvalidPlayback, event)
	}
	c.lck.Lock()
	if c.playing[track] == playing {
		c.lck.Unlock()
		return nil
	}
	c.playing[track] = playing
	c.touch()
	snap := c.snapshot()
	c.lck.Unlock()
	c.notify(snap)
	return nil
}

// DownloadName is the file name offered for the remix download.
func (c *Controller) DownloadName() string {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.downloadName()
}

func (c *Controller) downloadName() string {
	if c.state.Input == nil {
		return ""
	}
	return "remix-" + c.state.Input.Audio.Name
}

// Owns reports whether the handle belongs to the current state.
func (c *Controller) Owns(id string) bool {
	c.lck.Lock()
	defer c.lck.Unlock()
	s := c.state
	if s.Input != nil && s.Input.Handle != nil && s.Input.Handle.ID == id {
		return true
	}
	return s.Result != nil && s.Result.Handle != nil && s.Result.Handle.ID == id
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.state
}

// Updated returns the time of the last change.
func (c *Controller) Updated() time.Time {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.updated
}

func (c *Controller) touch() {
	c.updated = time.Now()
}

func (c *Controller) notify(s Snapshot) {
	if c.cfg.Notify != nil {
		c.cfg.Notify(s)
	}
}

func (c *Controller) release(ctx context.Context, h *handle.Handle) {
	if h == nil {
		return
	}
	if err := c.cfg.Handles.Release(ctx, h.ID); err != nil {
		log.Printf("app: couldn't release handle %s: %v\n", h.ID, err)
	}
}

func (c *Controller) releaseState(ctx context.Context, s State) {
	if s.Input != nil {
		c.release(ctx, s.Input.Handle)
	}
	if s.Result != nil {
		c.release(ctx, s.Result.Handle)
	}
}

func (c *Controller) record(ctx context.Context, enc *audio.Encoded, result *remix.Result, rerr error, elapsed time.Duration) {
	if c.cfg.History == nil {
		return
	}
	r := &storage.Remix{
		ID:        ulid.Make().String(),
		Session:   c.cfg.Session,
		InputName: enc.Name,
		InputType: enc.MediaType,
		InputSize: enc.Size,
		Elapsed:   elapsed,
	}
	if rerr != nil {
		r.Failed = true
		r.Error = rerr.Error()
	} else {
		r.Path = string(result.Path)
		r.Description = result.Description
		r.Rhythm = result.Rhythm
		if result.Handle != nil {
			r.HandleID = result.Handle.ID
			r.MediaType = result.Handle.MediaType
		}
	}
	// The request context may be gone by now
	ctx = context.WithoutCancel(ctx)
	if err := c.cfg.History.SetRemix(ctx, r); err != nil {
		log.Printf("app: couldn't save history: %v\n", err)
	}
}
