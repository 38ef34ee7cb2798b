package library

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFSAdapterScansAudioFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "song.mp3"), []byte("id3-ish"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("not audio"))

	a, err := NewFSAdapter(root, "Test Library", filepath.Join(root, "ids.db"))
	if err != nil {
		t.Fatalf("NewFSAdapter: %v", err)
	}
	defer a.Close()

	tracks := a.IterTracks()
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1: %+v", len(tracks), tracks)
	}
	if tracks[0].Title != "song" {
		t.Fatalf("title = %q, want song", tracks[0].Title)
	}
	if tracks[0].Format != "mp3" {
		t.Fatalf("format = %q, want mp3", tracks[0].Format)
	}
}

func TestFSAdapterPersistsIDsAcrossRestart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))
	dbPath := filepath.Join(root, "ids.db")

	a1, err := NewFSAdapter(root, "Lib", dbPath)
	if err != nil {
		t.Fatalf("NewFSAdapter: %v", err)
	}
	id1 := a1.IterTracks()[0].ItemID
	a1.Close()

	writeFile(t, filepath.Join(root, "b.mp3"), []byte("b"))
	a2, err := NewFSAdapter(root, "Lib", dbPath)
	if err != nil {
		t.Fatalf("NewFSAdapter (restart): %v", err)
	}
	defer a2.Close()

	found := false
	for _, tr := range a2.IterTracks() {
		if tr.FileLocator == filepath.Join(root, "a.mp3") {
			found = true
			if tr.ItemID != id1 {
				t.Fatalf("a.mp3 id changed across restart: %d -> %d", id1, tr.ItemID)
			}
		}
	}
	if !found {
		t.Fatal("a.mp3 missing after restart")
	}
	if len(a2.IterTracks()) != 2 {
		t.Fatalf("got %d tracks, want 2", len(a2.IterTracks()))
	}
}

func TestFSAdapterLibraryPlaylistContainsAllTracks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.flac"), []byte("b"))

	a, err := NewFSAdapter(root, "Lib", filepath.Join(root, "ids.db"))
	if err != nil {
		t.Fatalf("NewFSAdapter: %v", err)
	}
	defer a.Close()

	pls := a.IterPlaylists()
	if len(pls) != 1 || pls[0].PlaylistID != 1 {
		t.Fatalf("playlists = %+v, want one playlist with id 1", pls)
	}
	if len(pls[0].Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(pls[0].Entries))
	}
}

func TestFSAdapterFindsArtworkSibling(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "album", "track.mp3"), []byte("x"))
	writeFile(t, filepath.Join(root, "album", "cover.jpg"), []byte("jpg"))

	a, err := NewFSAdapter(root, "Lib", filepath.Join(root, "ids.db"))
	if err != nil {
		t.Fatalf("NewFSAdapter: %v", err)
	}
	defer a.Close()

	tr := a.IterTracks()[0]
	art, ok := a.GetArtwork(tr)
	if !ok {
		t.Fatal("expected artwork to be found")
	}
	if art.Mime != "jpeg" {
		t.Fatalf("mime = %q, want jpeg", art.Mime)
	}
}

func TestFSAdapterRescanFiresChangeFuncOnlyWhenSetChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))

	a, err := NewFSAdapter(root, "Lib", filepath.Join(root, "ids.db"))
	if err != nil {
		t.Fatalf("NewFSAdapter: %v", err)
	}
	defer a.Close()

	calls := 0
	a.SubscribeChanges(func() { calls++ })

	if err := a.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if calls != 0 {
		t.Fatalf("rescanning an unchanged tree should not notify, got %d calls", calls)
	}

	writeFile(t, filepath.Join(root, "b.mp3"), []byte("b"))
	if err := a.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 notification after adding a track, got %d", calls)
	}
}
