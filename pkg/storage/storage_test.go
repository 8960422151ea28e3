package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("New() err = %v; want nil", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() err = %v; want nil", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() err = %v; want nil", err)
	}
	return s
}

func TestUnknownDB(t *testing.T) {
	if _, err := New("oracle", "", false); err == nil {
		t.Fatal("New() err = nil; want error")
	}
}

func TestMigrateTwice(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() twice err = %v; want nil", err)
	}
}

func TestRemixes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	remixes := []*Remix{
		{ID: "01", Session: "a", InputName: "a.mp3", Path: "primary", Description: "AI Audio Remix Generated", Elapsed: time.Second},
		{ID: "02", Session: "a", InputName: "b.wav", Path: "fallback", Rhythm: "boom bap"},
		{ID: "03", Session: "b", InputName: "c.wav", Failed: true, Error: "network down"},
	}
	for _, r := range remixes {
		if err := s.SetRemix(ctx, r); err != nil {
			t.Fatalf("SetRemix(%s) err = %v; want nil", r.ID, err)
		}
	}

	got, err := s.GetRemix(ctx, "02")
	if err != nil {
		t.Fatalf("GetRemix() err = %v; want nil", err)
	}
	if got.Rhythm != "boom bap" || got.Path != "fallback" {
		t.Fatalf("GetRemix() = %+v; want rhythm and path set", got)
	}

	list, err := s.ListRemixes(ctx, 1, 10, "id asc", Where("failed = ?", false))
	if err != nil {
		t.Fatalf("ListRemixes() err = %v; want nil", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListRemixes()) = %d; want 2", len(list))
	}
	if list[0].ID != "01" || list[0].Elapsed != time.Second {
		t.Fatalf("ListRemixes()[0] = %+v; want 01 with elapsed 1s", list[0])
	}

	page, err := s.ListRemixes(ctx, 2, 2, "id asc")
	if err != nil {
		t.Fatalf("ListRemixes() err = %v; want nil", err)
	}
	if len(page) != 1 || page[0].ID != "03" {
		t.Fatalf("ListRemixes() page 2 = %v; want [03]", page)
	}

	if err := s.DeleteRemix(ctx, "01"); err != nil {
		t.Fatalf("DeleteRemix() err = %v; want nil", err)
	}
	if _, err := s.GetRemix(ctx, "01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRemix() err = %v; want %v", err, ErrNotFound)
	}
}

func TestUploads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetUpload(ctx, "x.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUpload() err = %v; want %v", err, ErrNotFound)
	}
	if err := s.SetUpload(ctx, &Upload{Name: "x.wav", Backend: "telegram", Ref: "1/2/abc", MediaType: "audio/wav", Size: 10}); err != nil {
		t.Fatalf("SetUpload() err = %v; want nil", err)
	}
	if err := s.SetUpload(ctx, &Upload{Name: "x.wav", Backend: "telegram", Ref: "1/3/def", MediaType: "audio/wav", Size: 12}); err != nil {
		t.Fatalf("SetUpload() overwrite err = %v; want nil", err)
	}
	got, err := s.GetUpload(ctx, "x.wav")
	if err != nil {
		t.Fatalf("GetUpload() err = %v; want nil", err)
	}
	if got.Ref != "1/3/def" || got.Size != 12 {
		t.Fatalf("GetUpload() = %+v; want ref 1/3/def and size 12", got)
	}
	if err := s.SetUpload(ctx, &Upload{}); err == nil {
		t.Fatal("SetUpload() without name err = nil; want error")
	}
	if err := s.DeleteUpload(ctx, "x.wav"); err != nil {
		t.Fatalf("DeleteUpload() err = %v; want nil", err)
	}
	if _, err := s.GetUpload(ctx, "x.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUpload() after delete err = %v; want %v", err, ErrNotFound)
	}
	if err := s.DeleteUpload(ctx, "x.wav"); err != nil {
		t.Fatalf("DeleteUpload() twice err = %v; want nil", err)
	}
}
