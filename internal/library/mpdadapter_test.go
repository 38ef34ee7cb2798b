package library

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
)

func TestOrDefault(t *testing.T) {
	if orDefault("", "fallback") != "fallback" {
		t.Fatal("empty string should use fallback")
	}
	if orDefault("set", "fallback") != "set" {
		t.Fatal("non-empty string should be kept")
	}
}

func TestAtoiHelpersToleratesEmptyOrMalformed(t *testing.T) {
	if atoiU16("") != 0 {
		t.Fatal("empty string should parse to 0")
	}
	if atoiU16("7") != 7 {
		t.Fatal("expected 7")
	}
	if atoiU32("not-a-number") != 0 {
		t.Fatal("malformed input should parse to 0, not panic")
	}
}

func TestFormatFromFile(t *testing.T) {
	cases := map[string]string{
		"Artist/Album/track.mp3": "mp3",
		"track.flac":             "flac",
		"noext":                  "",
	}
	for in, want := range cases {
		if got := formatFromFile(in); got != want {
			t.Fatalf("formatFromFile(%q) = %q, want %q", in, got, want)
		}
	}
}

// startFakeMPDServer speaks just enough of the MPD line protocol (the
// "OK MPD <version>" greeting, a listallinfo response terminated by "OK",
// and tolerating a trailing "close") for NewMPDAdapter/Rescan to dial,
// list, and disconnect against it.
func startFakeMPDServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveFakeMPDConn(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func serveFakeMPDConn(conn net.Conn) {
	defer conn.Close()
	io.WriteString(conn, "OK MPD 0.21.11\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		switch {
		case strings.HasPrefix(line, "listallinfo"):
			io.WriteString(conn, "file: track1.mp3\n")
			io.WriteString(conn, "Title: Track One\n")
			io.WriteString(conn, "Artist: Artist A\n")
			io.WriteString(conn, "Album: Album A\n")
			io.WriteString(conn, "Track: 1\n")
			io.WriteString(conn, "Disc: 1\n")
			io.WriteString(conn, "Time: 180\n")
			io.WriteString(conn, "file: track2.flac\n")
			io.WriteString(conn, "Title: Track Two\n")
			io.WriteString(conn, "Artist: Artist B\n")
			io.WriteString(conn, "OK\n")
		case strings.HasPrefix(line, "close"):
			return
		default:
			io.WriteString(conn, "OK\n")
		}
	}
}

func TestMPDAdapterRescanListsTracksFromFakeServer(t *testing.T) {
	addr, stop := startFakeMPDServer(t)
	defer stop()

	a, err := NewMPDAdapter("tcp", addr, "", "/music", "Test MPD")
	if err != nil {
		t.Fatalf("NewMPDAdapter: %v", err)
	}
	defer a.Close()

	tracks := a.IterTracks()
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks from the fake server, got %d: %+v", len(tracks), tracks)
	}

	byTitle := make(map[string]Track, len(tracks))
	for _, tr := range tracks {
		byTitle[tr.Title] = tr
	}

	one, ok := byTitle["Track One"]
	if !ok {
		t.Fatalf("missing %q in %+v", "Track One", tracks)
	}
	if one.Artist != "Artist A" || one.Album != "Album A" {
		t.Fatalf("track one tags wrong: %+v", one)
	}
	if one.Format != "mp3" || one.FileLocator != "/music/track1.mp3" {
		t.Fatalf("track one file fields wrong: %+v", one)
	}
	if one.Duration != 180000 {
		t.Fatalf("track one duration = %dms, want 180000ms", one.Duration)
	}

	two, ok := byTitle["Track Two"]
	if !ok {
		t.Fatalf("missing %q in %+v", "Track Two", tracks)
	}
	if two.Format != "flac" {
		t.Fatalf("track two format = %q, want flac", two.Format)
	}

	pls := a.IterPlaylists()
	if len(pls) != 1 || len(pls[0].Entries) != 2 {
		t.Fatalf("expected a single library playlist with 2 entries, got %+v", pls)
	}
}

func TestMPDAdapterRescanNotifiesSubscribers(t *testing.T) {
	addr, stop := startFakeMPDServer(t)
	defer stop()

	a, err := NewMPDAdapter("tcp", addr, "", "/music", "Test MPD")
	if err != nil {
		t.Fatalf("NewMPDAdapter: %v", err)
	}
	defer a.Close()

	fired := 0
	a.SubscribeChanges(func() { fired++ })

	if err := a.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected the change callback to fire once per Rescan, fired %d times", fired)
	}
}

func TestMPDAdapterRescanReusesStableIDs(t *testing.T) {
	addr, stop := startFakeMPDServer(t)
	defer stop()

	a, err := NewMPDAdapter("tcp", addr, "", "/music", "Test MPD")
	if err != nil {
		t.Fatalf("NewMPDAdapter: %v", err)
	}
	defer a.Close()

	before := map[string]uint32{}
	for _, tr := range a.IterTracks() {
		before[tr.Title] = tr.ItemID
	}

	if err := a.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	for _, tr := range a.IterTracks() {
		if before[tr.Title] != tr.ItemID {
			t.Fatalf("item id for %q changed across rescans: %d -> %d", tr.Title, before[tr.Title], tr.ItemID)
		}
	}
}
