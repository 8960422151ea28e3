package app

import (
	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/remix"
)

// Snapshot is a read-only view of a controller.
type Snapshot struct {
	Session      string         `json:"session"`
	Phase        Phase          `json:"phase"`
	Input        *InputView     `json:"input,omitempty"`
	Result       *ResultView    `json:"result,omitempty"`
	Message      string         `json:"message,omitempty"`
	Playing      map[Track]bool `json:"playing"`
	DownloadName string         `json:"download_name,omitempty"`
}

type InputView struct {
	Name      string      `json:"name"`
	MediaType string      `json:"media_type"`
	Size      int         `json:"size"`
	Tags      *audio.Tags `json:"tags,omitempty"`
	Handle    string      `json:"handle"`
}

type ResultView struct {
	Description string     `json:"description"`
	Path        remix.Path `json:"path"`
	MediaType   string     `json:"media_type"`
	Handle      string     `json:"handle"`
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Session: c.cfg.Session,
		Phase:   c.state.Phase,
		Message: c.state.Message,
		Playing: map[Track]bool{
			Original: c.playing[Original],
			Remixed:  c.playing[Remixed],
		},
	}
	if in := c.state.Input; in != nil {
		s.Input = &InputView{
			Name:      in.Audio.Name,
			MediaType: in.Audio.MediaType,
			Size:      in.Audio.Size,
			Tags:      in.Audio.Tags,
		}
		if in.Handle != nil {
			s.Input.Handle = in.Handle.ID
		}
	}
	if r := c.state.Result; r != nil {
		s.Result = &ResultView{
			Description: r.Description,
			Path:        r.Path,
		}
		if r.Handle != nil {
			s.Result.Handle = r.Handle.ID
			s.Result.MediaType = r.Handle.MediaType
		}
		s.DownloadName = c.downloadName()
	}
	return s
}
