package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
)

// MPDAdapter sources tracks from a running MPD (Music Player Daemon)
// instance instead of scanning the filesystem directly, an alternative
// to FSAdapter for deployments that already run MPD as their library
// manager. It maps mpd's attribute-bag track listing onto Track and
// watches mpd's "database" idle subsystem to fire ChangeFunc.
//
// MPD has no notion of per-track byte-range streaming over its own
// protocol; OpenAudio reads the underlying file directly from MPD's
// music directory, which must be reachable from this process.
type MPDAdapter struct {
	Name        string
	MusicDir    string
	network     string
	addr        string
	password    string

	mu     sync.RWMutex
	tracks []Track
	byID   map[uint32]Track
	ids    map[string]uint32 // mpd file path -> stable item id
	nextID uint32

	watcher   *mpd.Watcher
	callbacks []ChangeFunc
}

// NewMPDAdapter connects to mpd at addr (host:port) over network (almost
// always "tcp"), performs an initial library listing, and returns the
// adapter. Close must be called to release the idle-watcher connection.
func NewMPDAdapter(network, addr, password, musicDir, name string) (*MPDAdapter, error) {
	a := &MPDAdapter{
		Name:     name,
		MusicDir: musicDir,
		network:  network,
		addr:     addr,
		password: password,
		byID:     make(map[uint32]Track),
		ids:      make(map[string]uint32),
	}
	if err := a.Rescan(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MPDAdapter) dial() (*mpd.Client, error) {
	if a.password != "" {
		return mpd.DialAuthenticated(a.network, a.addr, a.password)
	}
	return mpd.Dial(a.network, a.addr)
}

func (a *MPDAdapter) DatabaseID() uint32   { return 1 }
func (a *MPDAdapter) DatabaseName() string { return a.Name }

func (a *MPDAdapter) IterTracks() []Track {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Track, len(a.tracks))
	copy(out, a.tracks)
	return out
}

func (a *MPDAdapter) LookupTrack(id uint32) (Track, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.byID[id]
	return t, ok
}

func (a *MPDAdapter) IterPlaylists() []Playlist {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries := make([]PlaylistEntry, len(a.tracks))
	for i, t := range a.tracks {
		entries[i] = PlaylistEntry{ItemID: t.ItemID}
	}
	return []Playlist{{PlaylistID: 1, Name: "Library", Entries: entries}}
}

func (a *MPDAdapter) LookupPlaylist(id uint32) (Playlist, bool) {
	if id != 1 {
		return Playlist{}, false
	}
	pls := a.IterPlaylists()
	return pls[0], true
}

func (a *MPDAdapter) OpenAudio(t Track) (AudioStream, error) {
	return openLocalFile(t.FileLocator)
}

func (a *MPDAdapter) GetArtwork(t Track) (Artwork, bool) {
	if t.ArtworkLocator == "" {
		return Artwork{}, false
	}
	return readArtworkFile(t.ArtworkLocator)
}

func (a *MPDAdapter) SubscribeChanges(cb ChangeFunc) {
	a.mu.Lock()
	a.callbacks = append(a.callbacks, cb)
	a.mu.Unlock()
}

// Rescan re-lists mpd's entire library via ListAllInfo("/") and rebuilds
// the Track set, assigning stable ids per mpd file path.
func (a *MPDAdapter) Rescan() error {
	client, err := a.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	attrs, err := client.ListAllInfo("/")
	if err != nil {
		return err
	}

	a.mu.Lock()
	tracks := make([]Track, 0, len(attrs))
	byID := make(map[uint32]Track, len(attrs))
	for _, at := range attrs {
		file, ok := at["file"]
		if !ok {
			continue // a directory entry, not a track
		}
		id, ok := a.ids[file]
		if !ok {
			a.nextID++
			id = a.nextID
			a.ids[file] = id
		}
		t := Track{
			ItemID:      id,
			Title:       orDefault(at["Title"], file),
			Artist:      at["Artist"],
			Album:       at["Album"],
			Genre:       at["Genre"],
			Track:       atoiU16(at["Track"]),
			Disc:        atoiU16(at["Disc"]),
			Duration:    atoiU32(at["Time"]) * 1000,
			Format:      formatFromFile(file),
			FileLocator: a.MusicDir + "/" + file,
		}
		tracks = append(tracks, t)
		byID[id] = t
	}
	a.tracks = tracks
	a.byID = byID
	a.mu.Unlock()

	a.notify()
	return nil
}

func (a *MPDAdapter) notify() {
	a.mu.RLock()
	cbs := make([]ChangeFunc, len(a.callbacks))
	copy(cbs, a.callbacks)
	a.mu.RUnlock()
	for _, cb := range cbs {
		cb()
	}
}

// WatchForChanges subscribes to mpd's "database" idle subsystem and
// triggers a Rescan on every event. The returned stop func closes the
// watcher connection.
func (a *MPDAdapter) WatchForChanges() (stop func(), err error) {
	w, err := mpd.NewWatcher(a.network, a.addr, a.password, "database")
	if err != nil {
		return nil, err
	}
	a.watcher = w
	go func() {
		for range w.Event {
			_ = a.Rescan()
		}
	}()
	return func() { w.Close() }, nil
}

func (a *MPDAdapter) Close() error {
	if a.watcher != nil {
		return a.watcher.Close()
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoiU16(s string) uint16 {
	n, _ := strconv.ParseUint(s, 10, 16)
	return uint16(n)
}

func atoiU32(s string) uint32 {
	n, _ := strconv.ParseUint(s, 10, 32)
	return uint32(n)
}

func formatFromFile(file string) string {
	for i := len(file) - 1; i >= 0 && i > len(file)-6; i-- {
		if file[i] == '.' {
			return file[i+1:]
		}
	}
	return ""
}

func openLocalFile(path string) (AudioStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioStream{}, fmt.Errorf("library: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return AudioStream{}, fmt.Errorf("library: stat %s: %w", path, err)
	}
	return AudioStream{Reader: f, Length: info.Size()}, nil
}

func readArtworkFile(path string) (Artwork, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Artwork{}, false
	}
	mimeType := "jpeg"
	if strings.ToLower(filepath.Ext(path)) == ".png" {
		mimeType = "png"
	}
	return Artwork{Bytes: b, Mime: mimeType}, true
}
