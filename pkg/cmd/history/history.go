package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/sonicremix/pkg/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	Format  string
	Output  string
	Limit   int
	Failed  bool
	Session string
}

type entry struct {
	ID          string `csv:"id" json:"id" yaml:"id"`
	CreatedAt   string `csv:"created_at" json:"created_at" yaml:"created_at"`
	Session     string `csv:"session" json:"session" yaml:"session"`
	Input       string `csv:"input" json:"input" yaml:"input"`
	InputType   string `csv:"input_type" json:"input_type" yaml:"input_type"`
	Path        string `csv:"path" json:"path" yaml:"path"`
	Description string `csv:"description" json:"description" yaml:"description"`
	MediaType   string `csv:"media_type" json:"media_type" yaml:"media_type"`
	Failed      bool   `csv:"failed" json:"failed" yaml:"failed"`
	Error       string `csv:"error" json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed     string `csv:"elapsed" json:"elapsed" yaml:"elapsed"`
}

func newEntry(r *storage.Remix) *entry {
	return &entry{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		Session:     r.Session,
		Input:       r.InputName,
		InputType:   r.InputType,
		Path:        r.Path,
		Description: r.Description,
		MediaType:   r.MediaType,
		Failed:      r.Failed,
		Error:       r.Error,
		Elapsed:     r.Elapsed.Round(time.Millisecond).String(),
	}
}

// Run lists the remixes stored in the database.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("history: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("history: couldn't start orm store: %w", err)
	}
	defer store.Stop()

	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	var filters []storage.Filter
	if cfg.Failed {
		filters = append(filters, storage.Where("failed = ?", true))
	}
	if cfg.Session != "" {
		filters = append(filters, storage.Where("session = ?", cfg.Session))
	}
	remixes, err := store.ListRemixes(ctx, 1, limit, "created_at desc", filters...)
	if err != nil {
		return fmt.Errorf("history: couldn't list remixes: %w", err)
	}

	w := io.Writer(os.Stdout)
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("history: couldn't create %s: %w", cfg.Output, err)
		}
		defer f.Close()
		w = f
	}
	return write(w, cfg.Format, remixes)
}

func write(w io.Writer, format string, remixes []*storage.Remix) error {
	entries := make([]*entry, 0, len(remixes))
	for _, r := range remixes {
		entries = append(entries, newEntry(r))
	}
	switch format {
	case "", "table":
		_, err := fmt.Fprintln(w, renderTable(entries))
		return err
	case "csv":
		if err := gocsv.Marshal(entries, w); err != nil {
			return fmt.Errorf("history: couldn't marshal csv: %w", err)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("history: couldn't marshal json: %w", err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("history: couldn't marshal yaml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("history: unsupported format %q", format)
	}
}

func renderTable(entries []*entry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Created", "Input", "Path", "Description", "Elapsed"})
	for _, e := range entries {
		path := e.Path
		if e.Failed {
			path = "failed"
		}
		tw.AppendRow(table.Row{e.CreatedAt, e.Input, path, e.Description, e.Elapsed})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 48},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}
