package tgstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/igolaizola/sonicremix/pkg/filestore/retry"
	"github.com/igolaizola/sonicremix/pkg/storage"
)

func TestRef(t *testing.T) {
	ref := toRef(-100123, 42, "BQACAgQAAx")
	chat, msgID, fileID, err := fromRef(ref)
	if err != nil {
		t.Fatalf("fromRef(%q) err = %v; want nil", ref, err)
	}
	if chat != -100123 || msgID != 42 || fileID != "BQACAgQAAx" {
		t.Fatalf("fromRef(%q) = %d, %d, %q", ref, chat, msgID, fileID)
	}
}

func TestInvalidRef(t *testing.T) {
	tests := []string{"", "1/2", "a/2/x", "1/b/x", "1/2/"}
	for _, tt := range tests {
		if _, _, _, err := fromRef(tt); err == nil {
			t.Errorf("fromRef(%q) err = nil; want error", tt)
		}
	}
}

type fakeUploads map[string]*storage.Upload

func (f fakeUploads) GetUpload(ctx context.Context, name string) (*storage.Upload, error) {
	v, ok := f[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (f fakeUploads) SetUpload(ctx context.Context, v *storage.Upload) error {
	f[v.Name] = v
	return nil
}

func (f fakeUploads) DeleteUpload(ctx context.Context, name string) error {
	delete(f, name)
	return nil
}

func TestRefWithSlash(t *testing.T) {
	_, _, fileID, err := fromRef("1/2/a/b")
	if err != nil || fileID != "a/b" {
		t.Fatalf("fromRef() = %q, %v; want %q", fileID, err, "a/b")
	}
}

func TestMessageFile(t *testing.T) {
	tests := []struct {
		name string
		msg  tgbot.Message
		want string
	}{
		{"audio", tgbot.Message{Audio: &tgbot.Audio{FileID: "a"}}, "a"},
		{"voice", tgbot.Message{Voice: &tgbot.Voice{FileID: "v"}}, "v"},
		{"document", tgbot.Message{Document: &tgbot.Document{FileID: "d"}}, "d"},
		{"none", tgbot.Message{}, ""},
	}
	for _, tt := range tests {
		if got := messageFile(&tt.msg); got != tt.want {
			t.Errorf("messageFile(%s) = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestDeleteUnknown(t *testing.T) {
	s := &Store{uploads: fakeUploads{}}
	if err := s.Delete(context.Background(), "missing.wav"); err != nil {
		t.Errorf("Delete() err = %v; want nil", err)
	}
}

func TestDownloadUnknown(t *testing.T) {
	s := &Store{uploads: fakeUploads{}}
	err := s.Download(context.Background(), filepath.Join(t.TempDir(), "x.wav"), "missing.wav")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() err = %v; want %v", err, storage.ErrNotFound)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("RIFF"))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := &Store{client: srv.Client()}
	ctx := context.Background()
	b, err := s.fetch(ctx, "x.wav", srv.URL+"/ok")
	if err != nil || string(b) != "RIFF" {
		t.Fatalf("fetch() = %q, %v; want %q", b, err, "RIFF")
	}

	p := &retry.Policy{Attempts: 3, Backoff: []time.Duration{time.Millisecond}}
	calls := 0
	err = p.Do(ctx, func(ctx context.Context) error {
		calls++
		_, err := s.fetch(ctx, "x.wav", srv.URL+"/gone")
		return err
	})
	if err == nil || calls != 1 {
		t.Errorf("fetch() of a missing file = %v after %d calls; want an error after 1", err, calls)
	}
	calls = 0
	err = p.Do(ctx, func(ctx context.Context) error {
		calls++
		_, err := s.fetch(ctx, "x.wav", srv.URL+"/flaky")
		return err
	})
	if err == nil || calls != 3 {
		t.Errorf("fetch() of a failing server = %v after %d calls; want an error after 3", err, calls)
	}
}
