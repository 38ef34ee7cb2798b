package library

import (
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"
)

// audioExtensions is the fixed set of files FSAdapter treats as tracks.
var audioExtensions = map[string]string{
	".mp3":  "mp3",
	".m4a":  "m4a",
	".flac": "flac",
	".aac":  "aac",
	".ogg":  "ogg",
	".wav":  "wav",
}

var artworkNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png"}

// FSAdapter is the bundled Adapter implementation: it scans Root for
// audio files and exposes them as a single "Library" playlist (id 1).
// Item ids are persisted in a local sqlite database keyed by absolute
// path, the same way the library survives a server restart without
// reassigning ids to files that haven't moved; a never-seen path gets
// the next id in sequence. fsnotify drives incremental rescans instead
// of polling.
type FSAdapter struct {
	Root string
	Name string

	db *sql.DB

	mu        sync.RWMutex
	tracks    []Track
	byID      map[uint32]Track
	watcher   *fsnotify.Watcher
	callbacks []ChangeFunc
}

// NewFSAdapter opens (creating if absent) the id-persistence database at
// dbPath and performs an initial scan of root.
func NewFSAdapter(root, name, dbPath string) (*FSAdapter, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS track_ids (
		path TEXT PRIMARY KEY,
		item_id INTEGER NOT NULL UNIQUE
	)`); err != nil {
		db.Close()
		return nil, err
	}

	a := &FSAdapter{Root: root, Name: name, db: db, byID: make(map[uint32]Track)}
	if err := a.Rescan(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *FSAdapter) DatabaseID() uint32   { return 1 }
func (a *FSAdapter) DatabaseName() string { return a.Name }

func (a *FSAdapter) IterTracks() []Track {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Track, len(a.tracks))
	copy(out, a.tracks)
	return out
}

func (a *FSAdapter) LookupTrack(id uint32) (Track, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.byID[id]
	return t, ok
}

// IterPlaylists always returns exactly the base "Library" playlist
// (id 1), containing every scanned track in scan order.
func (a *FSAdapter) IterPlaylists() []Playlist {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries := make([]PlaylistEntry, len(a.tracks))
	for i, t := range a.tracks {
		entries[i] = PlaylistEntry{ItemID: t.ItemID}
	}
	return []Playlist{{PlaylistID: 1, Name: "Library", Entries: entries}}
}

func (a *FSAdapter) LookupPlaylist(id uint32) (Playlist, bool) {
	if id != 1 {
		return Playlist{}, false
	}
	pls := a.IterPlaylists()
	return pls[0], true
}

func (a *FSAdapter) OpenAudio(t Track) (AudioStream, error) {
	f, err := os.Open(t.FileLocator)
	if err != nil {
		return AudioStream{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return AudioStream{}, err
	}
	return AudioStream{Reader: f, Length: info.Size()}, nil
}

func (a *FSAdapter) GetArtwork(t Track) (Artwork, bool) {
	if t.ArtworkLocator == "" {
		return Artwork{}, false
	}
	b, err := os.ReadFile(t.ArtworkLocator)
	if err != nil {
		return Artwork{}, false
	}
	ext := strings.ToLower(filepath.Ext(t.ArtworkLocator))
	mimeType := "jpeg"
	if ext == ".png" {
		mimeType = "png"
	}
	return Artwork{Bytes: b, Mime: mimeType}, true
}

func (a *FSAdapter) SubscribeChanges(cb ChangeFunc) {
	a.mu.Lock()
	a.callbacks = append(a.callbacks, cb)
	a.mu.Unlock()
}

func (a *FSAdapter) notify() {
	a.mu.RLock()
	cbs := make([]ChangeFunc, len(a.callbacks))
	copy(cbs, a.callbacks)
	a.mu.RUnlock()
	for _, cb := range cbs {
		cb()
	}
}

// Rescan walks Root, rebuilds the in-memory track list, and fires every
// subscribed ChangeFunc if anything changed.
func (a *FSAdapter) Rescan() error {
	var found []string
	err := filepath.WalkDir(a.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate unreadable subtrees
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(found)

	tracks := make([]Track, 0, len(found))
	byID := make(map[uint32]Track, len(found))
	for _, path := range found {
		id, err := a.idForPath(path)
		if err != nil {
			continue
		}
		t := Track{
			ItemID:      id,
			Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Format:      audioExtensions[strings.ToLower(filepath.Ext(path))],
			FileLocator: path,
		}
		if info, err := os.Stat(path); err == nil {
			t.Size = uint32(info.Size())
		}
		if art := findArtwork(filepath.Dir(path)); art != "" {
			t.ArtworkLocator = art
		}
		tracks = append(tracks, t)
		byID[id] = t
	}

	a.mu.Lock()
	changed := !sameTrackSet(a.tracks, tracks)
	a.tracks = tracks
	a.byID = byID
	a.mu.Unlock()

	if changed {
		a.notify()
	}
	return nil
}

func sameTrackSet(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ItemID != b[i].ItemID {
			return false
		}
	}
	return true
}

func findArtwork(dir string) string {
	for _, name := range artworkNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (a *FSAdapter) idForPath(path string) (uint32, error) {
	var id int64
	err := a.db.QueryRow(`SELECT item_id FROM track_ids WHERE path = ?`, path).Scan(&id)
	if err == nil {
		return uint32(id), nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	var maxID int64
	if err := a.db.QueryRow(`SELECT COALESCE(MAX(item_id), 0) FROM track_ids`).Scan(&maxID); err != nil {
		return 0, err
	}
	next := maxID + 1
	if _, err := a.db.Exec(`INSERT INTO track_ids(path, item_id) VALUES (?, ?)`, path, next); err != nil {
		return 0, err
	}
	return uint32(next), nil
}

// WatchForChanges starts an fsnotify watcher on Root (non-recursive
// directories are added as they're discovered during the initial scan)
// and triggers a Rescan on any write/create/remove/rename event. The
// returned stop func releases the watcher.
func (a *FSAdapter) WatchForChanges() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]struct{}{a.Root: {}}
	for _, t := range a.tracks {
		dirs[filepath.Dir(t.FileLocator)] = struct{}{}
	}
	for d := range dirs {
		_ = w.Add(d)
	}
	a.watcher = w

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				_ = a.Rescan()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}

// Close releases the id-persistence database.
func (a *FSAdapter) Close() error {
	return a.db.Close()
}

var _ io.Closer = (*FSAdapter)(nil)
