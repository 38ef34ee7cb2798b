package router

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"daap-server/internal/content"
	"daap-server/internal/dmap"
	"daap-server/internal/httpio"
	"daap-server/internal/library"
	"daap-server/internal/revision"
	"daap-server/internal/session"
)

type fakeAdapter struct {
	tracks    []library.Track
	playlists []library.Playlist
}

func (f *fakeAdapter) DatabaseID() uint32   { return 1 }
func (f *fakeAdapter) DatabaseName() string { return "Test" }
func (f *fakeAdapter) IterTracks() []library.Track { return f.tracks }
func (f *fakeAdapter) LookupTrack(id uint32) (library.Track, bool) {
	for _, t := range f.tracks {
		if t.ItemID == id {
			return t, true
		}
	}
	return library.Track{}, false
}
func (f *fakeAdapter) IterPlaylists() []library.Playlist { return f.playlists }
func (f *fakeAdapter) LookupPlaylist(id uint32) (library.Playlist, bool) {
	for _, p := range f.playlists {
		if p.PlaylistID == id {
			return p, true
		}
	}
	return library.Playlist{}, false
}
func (f *fakeAdapter) OpenAudio(t library.Track) (library.AudioStream, error) {
	data := []byte("0123456789")
	return library.AudioStream{Reader: io.NopCloser(bytes.NewReader(data)), Length: int64(len(data))}, nil
}
func (f *fakeAdapter) GetArtwork(t library.Track) (library.Artwork, bool) {
	if t.ArtworkLocator == "" {
		return library.Artwork{}, false
	}
	return library.Artwork{Bytes: []byte{0xFF, 0xD8}, Mime: "jpeg"}, true
}
func (f *fakeAdapter) SubscribeChanges(cb library.ChangeFunc) {}

func newTestRouter(adapter *fakeAdapter) *Router {
	rt := New(dmap.DefaultRegistry(), adapter, session.New(0, time.Hour), revision.New())
	rt.ServerName = "Test"
	rt.Realm = "Test"
	rt.AuthMethod = content.AuthNone
	return rt
}

func doRequest(t *testing.T, rt *Router, raw string) string {
	t.Helper()
	req, err := httpio.ParseRequest(bufio.NewReader(strings.NewReader(raw)), "127.0.0.1:1")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := httpio.NewResponseWriter(bw, rt.ServerName)
	rt.Handle(req, w)
	return buf.String()
}

func findChild(n dmap.Node, code string) (dmap.Node, bool) {
	for _, c := range n.Children {
		if c.Code == code {
			return c, true
		}
	}
	return dmap.Node{}, false
}

func decodeBody(t *testing.T, raw string) dmap.Node {
	t.Helper()
	i := strings.Index(raw, "\r\n\r\n")
	if i < 0 {
		t.Fatalf("no header/body split in %q", raw)
	}
	body := []byte(raw[i+4:])
	n, _, err := dmap.Decode(body, dmap.DefaultRegistry().KindOf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return n
}

func TestHandshakeScenario(t *testing.T) {
	adapter := &fakeAdapter{tracks: []library.Track{{ItemID: 1}}}
	rt := newTestRouter(adapter)

	out := doRequest(t, rt, "GET /server-info HTTP/1.1\r\n\r\n")
	n := decodeBody(t, out)
	if n.Code != "msrv" {
		t.Fatalf("code=%q", n.Code)
	}
	msdc, _ := findChild(n, "msdc")
	if msdc.UInt != 1 {
		t.Fatalf("msdc=%d", msdc.UInt)
	}

	out = doRequest(t, rt, "GET /content-codes HTTP/1.1\r\n\r\n")
	n = decodeBody(t, out)
	if n.Code != "mccr" {
		t.Fatalf("code=%q", n.Code)
	}

	out = doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	n = decodeBody(t, out)
	if n.Code != "mlog" {
		t.Fatalf("code=%q", n.Code)
	}
	mlid, ok := findChild(n, "mlid")
	if !ok || mlid.UInt == 0 {
		t.Fatalf("mlid missing or zero: %+v", mlid)
	}
	sessionID := mlid.UInt

	go func() {
		time.Sleep(20 * time.Millisecond)
		rt.Revisions.Bump(nil)
	}()
	out = doRequest(t, rt, "GET /update?session-id="+itoa(sessionID)+"&revision-number=1 HTTP/1.1\r\n\r\n")
	n = decodeBody(t, out)
	if n.Code != "mupd" {
		t.Fatalf("code=%q", n.Code)
	}
	musr, _ := findChild(n, "musr")
	if musr.UInt != 2 {
		t.Fatalf("musr=%d, want 2", musr.UInt)
	}
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func TestFullThenDeltaScenario(t *testing.T) {
	adapter := &fakeAdapter{tracks: []library.Track{
		{ItemID: 1, Title: "One"}, {ItemID: 2, Title: "Two"}, {ItemID: 3, Title: "Three"},
	}}
	rt := newTestRouter(adapter)
	s, _ := rt.Sessions.Login("x", "")

	out := doRequest(t, rt, "GET /databases/1/items?session-id="+itoa(uint64(s.ID))+"&meta=dmap.itemid,dmap.itemname HTTP/1.1\r\n\r\n")
	n := decodeBody(t, out)
	muty, _ := findChild(n, "muty")
	mtco, _ := findChild(n, "mtco")
	if muty.UInt != 0 || mtco.UInt != 3 {
		t.Fatalf("full listing wrong: muty=%d mtco=%d", muty.UInt, mtco.UInt)
	}

	adapter.tracks = []library.Track{{ItemID: 1, Title: "One"}, {ItemID: 3, Title: "Three"}}
	rt.Revisions.Bump(nil)         // -> revision 2
	rt.Revisions.Bump([]uint32{2}) // -> revision 3, track 2 removed

	out = doRequest(t, rt, "GET /databases/1/items?session-id="+itoa(uint64(s.ID))+"&revision-number=3&delta=2&meta=dmap.itemid,dmap.itemname HTTP/1.1\r\n\r\n")
	n = decodeBody(t, out)
	muty, _ = findChild(n, "muty")
	mtco, _ = findChild(n, "mtco")
	if muty.UInt != 1 || mtco.UInt != 2 {
		t.Fatalf("delta listing wrong: muty=%d mtco=%d", muty.UInt, mtco.UInt)
	}
	mudl, ok := findChild(n, "mudl")
	if !ok || len(mudl.Children) != 1 || mudl.Children[0].UInt != 2 {
		t.Fatalf("mudl wrong: %+v", mudl)
	}
}

func TestRangedStreamScenario(t *testing.T) {
	adapter := &fakeAdapter{tracks: []library.Track{{ItemID: 7, Format: "mp3"}}}
	rt := newTestRouter(adapter)
	s, _ := rt.Sessions.Login("x", "")

	out := doRequest(t, rt, "GET /databases/1/items/7.mp3?session-id="+itoa(uint64(s.ID))+" HTTP/1.1\r\nRange: bytes=4-\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 206 Partial Content\r\n") {
		t.Fatalf("expected 206, got: %q", out[:40])
	}
	if !strings.Contains(out, "Content-Range: bytes 4-10/11\r\n") {
		t.Fatalf("bad content-range: %q", out)
	}
}

func TestAuthChallengeScenario(t *testing.T) {
	adapter := &fakeAdapter{}
	rt := newTestRouter(adapter)
	rt.AuthMethod = content.AuthPassword
	rt.Credentials = []Credential{{Password: "hunter2"}}

	out := doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 401 Unauthorized\r\n") {
		t.Fatalf("expected 401 no-auth, got: %q", out[:40])
	}

	out = doRequest(t, rt, "GET /login HTTP/1.1\r\nAuthorization: Basic OmhldW50ZXIy\r\n\r\n")
	// ":heunter2" (empty user, misspelt password) should fail -> 401
	if !strings.HasPrefix(out, "HTTP/1.1 401 Unauthorized\r\n") {
		t.Fatalf("expected 401 wrong-password, got: %q", out[:40])
	}

	// ":hunter2" (empty user, correct password) should succeed -> 200 + mlog.
	out = doRequest(t, rt, "GET /login HTTP/1.1\r\nAuthorization: Basic Omh1bnRlcjI=\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("expected 200 on correct password, got: %q", out[:40])
	}
	n := decodeBody(t, out)
	if n.Code != "mlog" {
		t.Fatalf("code=%q", n.Code)
	}
}

func TestUnknownSessionForbidden(t *testing.T) {
	adapter := &fakeAdapter{}
	rt := newTestRouter(adapter)
	out := doRequest(t, rt, "GET /databases HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 403 Forbidden\r\n") {
		t.Fatalf("expected 403, got: %q", out[:40])
	}
}

func TestMaxUsersCapReturns503(t *testing.T) {
	adapter := &fakeAdapter{}
	rt := newTestRouter(adapter)
	rt.Sessions = session.New(1, time.Hour)

	out := doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("first login should succeed, got: %q", out[:40])
	}
	out = doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 503 Service Unavailable\r\n") {
		t.Fatalf("second login should 503, got: %q", out[:40])
	}
}

func TestMaxUsersCapSkipsUserLoginHook(t *testing.T) {
	adapter := &fakeAdapter{}
	rt := newTestRouter(adapter)
	rt.Sessions = session.New(1, time.Hour)

	fired := 0
	rt.Hooks.UserLogin = func(sessionID uint32) error {
		fired++
		return nil
	}

	out := doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("first login should succeed, got: %q", out[:40])
	}
	if fired != 1 {
		t.Fatalf("expected UserLogin to fire once for the accepted login, fired %d times", fired)
	}

	out = doRequest(t, rt, "GET /login HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 503 Service Unavailable\r\n") {
		t.Fatalf("second login should 503, got: %q", out[:40])
	}
	if fired != 1 {
		t.Fatalf("UserLogin must not fire for a login rejected by the max-users cap, fired %d times total", fired)
	}
}

func TestWrongDatabaseIDReturns400(t *testing.T) {
	adapter := &fakeAdapter{}
	rt := newTestRouter(adapter)
	s, _ := rt.Sessions.Login("x", "")
	out := doRequest(t, rt, "GET /databases/99/items?session-id="+itoa(uint64(s.ID))+" HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(out, "HTTP/1.1 400 Bad Request\r\n") {
		t.Fatalf("expected 400, got: %q", out[:40])
	}
}

func TestPlaylistContainerIDStability(t *testing.T) {
	adapter := &fakeAdapter{
		playlists: []library.Playlist{{PlaylistID: 1, Name: "Library"}},
	}
	rt := newTestRouter(adapter)
	s, _ := rt.Sessions.Login("x", "")
	adapter.tracks = []library.Track{{ItemID: 1}, {ItemID: 2}}
	adapter.playlists[0].Entries = []library.PlaylistEntry{{ItemID: 1}, {ItemID: 2}}

	out := doRequest(t, rt, "GET /databases/1/containers/1/items?session-id="+itoa(uint64(s.ID))+" HTTP/1.1\r\n\r\n")
	n := decodeBody(t, out)
	mlcl, _ := findChild(n, "mlcl")
	if len(mlcl.Children) != 2 {
		t.Fatalf("expected 2 container entries, got %d", len(mlcl.Children))
	}
	first := mlcl.Children[0]
	mcti, _ := findChild(first, "mcti")
	firstContainerID := mcti.UInt

	out = doRequest(t, rt, "GET /databases/1/containers/1/items?session-id="+itoa(uint64(s.ID))+" HTTP/1.1\r\n\r\n")
	n = decodeBody(t, out)
	mlcl, _ = findChild(n, "mlcl")
	first = mlcl.Children[0]
	mcti, _ = findChild(first, "mcti")
	if mcti.UInt != firstContainerID {
		t.Fatalf("container id changed across requests: %d -> %d", firstContainerID, mcti.UInt)
	}
}
