// Package router maps DAAP request paths to handlers, enforcing the
// session and authentication preconditions spec.md §4.8 lays out before
// handing off to the content-tree builders, the library adapter, the
// revision manager, and the playlist diff engine. It is the one place
// that knows the full URL surface; everything downstream is a pure
// function over plain arguments.
package router

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"daap-server/internal/content"
	"daap-server/internal/daaperr"
	"daap-server/internal/dmap"
	"daap-server/internal/httpio"
	"daap-server/internal/library"
	"daap-server/internal/revision"
	"daap-server/internal/session"
	"sync"
)

// ErrCloseAfterWrite is returned by handlers that must not keep the
// connection alive after a successful write, e.g. artwork (spec.md §4.8:
// "Stream artwork; close connection after"). The server treats any
// non-nil handler error as a close signal.
var ErrCloseAfterWrite = errors.New("router: close connection after response")

// Credential is one entry in the configured auth table.
type Credential struct {
	Username string // empty means "any username" under auth_method=password
	Password string
}

// Hooks are the user-registered event callbacks. Errors from any of them
// are caught and logged; they never interrupt the response, per spec.md
// §6's propagation policy.
type Hooks struct {
	TrackRequested    func(t library.Track) error
	DatabaseRequested func() error
	UserLogin         func(sessionID uint32) error
	UserLogout        func(sessionID uint32) error
}

// Router owns no state of its own beyond playlist diff snapshots; all
// library truth comes from Library, all session/revision truth from
// Sessions/Revisions.
type Router struct {
	Registry    *dmap.Registry
	Library     library.Adapter
	Sessions    *session.Manager
	Revisions   *revision.Manager
	ServerName  string
	Realm       string
	AuthMethod  content.AuthMethod
	Credentials []Credential
	TimeoutSec  uint32
	Hooks       Hooks
	Log         func(msg string, err error)

	mu        sync.Mutex
	playlists map[uint32]*library.PlaylistState
}

func New(reg *dmap.Registry, lib library.Adapter, sessions *session.Manager, revisions *revision.Manager) *Router {
	return &Router{
		Registry:  reg,
		Library:   lib,
		Sessions:  sessions,
		Revisions: revisions,
		playlists: make(map[uint32]*library.PlaylistState),
	}
}

var (
	reItems          = regexp.MustCompile(`^/databases/(\d+)/items$`)
	reItem           = regexp.MustCompile(`^/databases/(\d+)/items/(\d+)(?:\.[a-zA-Z0-9]+)?$`)
	reArtwork        = regexp.MustCompile(`^/databases/(\d+)/items/(\d+)/extra_data/artwork$`)
	reContainers     = regexp.MustCompile(`^/databases/(\d+)/containers$`)
	reContainerItems = regexp.MustCompile(`^/databases/(\d+)/containers/(\d+)/items$`)
)

func (rt *Router) logErr(msg string, err error) {
	if err == nil || rt.Log == nil {
		return
	}
	rt.Log(msg, err)
}

// Handle dispatches one parsed request to the matching endpoint. It is
// the Handler func passed to httpio.Server.
func (rt *Router) Handle(req *httpio.Request, w *httpio.ResponseWriter) error {
	switch req.Path {
	case "/server-info":
		return rt.handleServerInfo(w)
	case "/content-codes":
		return rt.handleContentCodes(w)
	case "/login":
		return rt.handleLogin(req, w)
	case "/logout":
		return rt.withSession(req, w, rt.handleLogout)
	case "/update":
		return rt.withSession(req, w, func(sessionID uint32) error { return rt.updateHandler(req, w, sessionID) })
	case "/databases":
		return rt.withSession(req, w, func(sessionID uint32) error { return rt.databasesHandler(w) })
	}

	if m := reItem.FindStringSubmatch(req.Path); m != nil {
		return rt.withSessionAndDB(req, w, m[1], func() error { return rt.handleItemStream(req, w, m[2]) })
	}
	if m := reArtwork.FindStringSubmatch(req.Path); m != nil {
		return rt.withSessionAndDB(req, w, m[1], func() error { return rt.handleArtwork(w, m[2]) })
	}
	if m := reItems.FindStringSubmatch(req.Path); m != nil {
		return rt.withSessionAndDB(req, w, m[1], func() error { return rt.handleItems(req, w) })
	}
	if m := reContainerItems.FindStringSubmatch(req.Path); m != nil {
		return rt.withSessionAndDB(req, w, m[1], func() error { return rt.handleContainerItems(req, w, m[2]) })
	}
	if m := reContainers.FindStringSubmatch(req.Path); m != nil {
		return rt.withSessionAndDB(req, w, m[1], func() error { return rt.handleContainers(w) })
	}

	// Unknown path: 403 if the request does not carry a known session id,
	// 404 otherwise (spec.md §6's error-kind table).
	if !rt.hasKnownSession(req) {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrForbiddenNoSession), daaperr.BodyOf(daaperr.ErrForbiddenNoSession))
	}
	return w.WriteError(daaperr.StatusOf(daaperr.ErrNotFound), daaperr.BodyOf(daaperr.ErrNotFound))
}

func (rt *Router) hasKnownSession(req *httpio.Request) bool {
	id := req.QueryInt("session-id")
	return id != 0 && rt.Sessions.Exists(id)
}

// withSession enforces the "session valid" precondition every endpoint
// but /server-info, /content-codes, and /login carries, touches the
// session on success, then runs fn.
func (rt *Router) withSession(req *httpio.Request, w *httpio.ResponseWriter, fn func(sessionID uint32) error) error {
	id := req.QueryInt("session-id")
	if id == 0 || !rt.Sessions.Exists(id) {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrForbiddenNoSession), daaperr.BodyOf(daaperr.ErrForbiddenNoSession))
	}
	rt.Sessions.Touch(id)
	return fn(id)
}

// withSessionAndDB additionally enforces that the {db} path segment
// equals the adapter's single database id (400 otherwise).
func (rt *Router) withSessionAndDB(req *httpio.Request, w *httpio.ResponseWriter, dbSeg string, fn func() error) error {
	return rt.withSession(req, w, func(sessionID uint32) error {
		db, err := strconv.ParseUint(dbSeg, 10, 32)
		if err != nil || uint32(db) != rt.Library.DatabaseID() {
			return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
		}
		return fn()
	})
}

func (rt *Router) handleServerInfo(w *httpio.ResponseWriter) error {
	if rt.Hooks.DatabaseRequested != nil {
		rt.logErr("database_requested", rt.Hooks.DatabaseRequested())
	}
	n := content.ServerInfo(content.ServerInfoParams{
		Name:        rt.ServerName,
		DatabaseCnt: 1,
		Auth:        rt.AuthMethod,
		TimeoutSec:  rt.TimeoutSec,
	})
	return w.WriteDMAP(n)
}

func (rt *Router) handleContentCodes(w *httpio.ResponseWriter) error {
	return w.WriteDMAP(content.ContentCodes(rt.Registry))
}

func (rt *Router) handleLogin(req *httpio.Request, w *httpio.ResponseWriter) error {
	rt.Sessions.ExpireIdle(time.Now())

	username, ok := rt.authenticate(req)
	if !ok {
		return w.WriteAuthChallenge(rt.Realm)
	}

	s, err := rt.Sessions.Login(req.RemoteAddr, username)
	if err != nil {
		var tooMany session.ErrTooManyUsers
		if errors.As(err, &tooMany) {
			return w.WriteError(daaperr.StatusOf(daaperr.ErrTooManyUsers), daaperr.BodyOf(daaperr.ErrTooManyUsers))
		}
		return w.WriteError(daaperr.StatusOf(daaperr.ErrInternal), daaperr.BodyOf(daaperr.ErrInternal))
	}

	if rt.Hooks.UserLogin != nil {
		rt.logErr("user_login", rt.Hooks.UserLogin(s.ID))
	}
	return w.WriteDMAP(content.Login(s.ID))
}

// authenticate implements spec.md §4.8's three auth modes. It only runs
// for /login; every other endpoint relies solely on session presence.
func (rt *Router) authenticate(req *httpio.Request) (username string, ok bool) {
	switch rt.AuthMethod {
	case content.AuthNone:
		return "", true
	case content.AuthPassword:
		if req.Auth == nil {
			return "", false
		}
		for _, c := range rt.Credentials {
			if c.Password == req.Auth.Password {
				return req.Auth.Username, true
			}
		}
		return "", false
	case content.AuthUserAndPassword:
		if req.Auth == nil {
			return "", false
		}
		for _, c := range rt.Credentials {
			if c.Username == req.Auth.Username && c.Password == req.Auth.Password {
				return req.Auth.Username, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func (rt *Router) handleLogout(sessionID uint32) error {
	rt.Sessions.Logout(sessionID)
	if rt.Hooks.UserLogout != nil {
		rt.logErr("user_logout", rt.Hooks.UserLogout(sessionID))
	}
	return nil
}

func (rt *Router) updateHandler(req *httpio.Request, w *httpio.ResponseWriter, sessionID uint32) error {
	clientRev := req.QueryInt("revision-number")
	current := rt.Revisions.WaitForUpdate(clientRev)
	if rt.Revisions.Stopped() {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrNotFound), daaperr.BodyOf(daaperr.ErrNotFound))
	}
	return w.WriteDMAP(content.Update(current))
}

func (rt *Router) databasesHandler(w *httpio.ResponseWriter) error {
	if rt.Hooks.DatabaseRequested != nil {
		rt.logErr("database_requested", rt.Hooks.DatabaseRequested())
	}
	n := content.Databases(rt.Library.DatabaseID(), rt.Library.DatabaseName(), len(rt.Library.IterTracks()))
	return w.WriteDMAP(n)
}

func (rt *Router) handleItems(req *httpio.Request, w *httpio.ResponseWriter) error {
	delta := req.QueryInt("delta")
	fields := content.ParseMeta(req.QueryString("meta"))
	tracks := rt.Library.IterTracks()

	isDelta := delta > 0
	var deletedIDs []uint32
	if isDelta {
		deletedIDs = rt.Revisions.DeletedSince(delta)
	}
	return w.WriteDMAP(content.Items(tracks, fields, isDelta, deletedIDs))
}

func (rt *Router) handleItemStream(req *httpio.Request, w *httpio.ResponseWriter, trackSeg string) error {
	id, err := strconv.ParseUint(trackSeg, 10, 32)
	if err != nil {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}
	track, ok := rt.Library.LookupTrack(uint32(id))
	if !ok {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}
	if rt.Hooks.TrackRequested != nil {
		rt.logErr("track_requested", rt.Hooks.TrackRequested(track))
	}

	stream, err := rt.Library.OpenAudio(track)
	if err != nil || stream.Reader == nil {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrNoFile), daaperr.BodyOf(daaperr.ErrNoFile))
	}
	defer stream.Reader.Close()

	return w.WriteFile(stream.Reader, stream.Length, req.Range, mimeForFormat(track.Format))
}

func (rt *Router) handleArtwork(w *httpio.ResponseWriter, trackSeg string) error {
	id, err := strconv.ParseUint(trackSeg, 10, 32)
	if err != nil {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}
	track, ok := rt.Library.LookupTrack(uint32(id))
	if !ok {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}
	art, ok := rt.Library.GetArtwork(track)
	if !ok {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrNotFound), daaperr.BodyOf(daaperr.ErrNotFound))
	}
	if err := w.WriteArtwork(art.Bytes, art.Mime); err != nil {
		return err
	}
	return ErrCloseAfterWrite
}

func (rt *Router) handleContainers(w *httpio.ResponseWriter) error {
	return w.WriteDMAP(content.Containers(rt.Library.IterPlaylists()))
}

func (rt *Router) handleContainerItems(req *httpio.Request, w *httpio.ResponseWriter, plSeg string) error {
	plID, err := strconv.ParseUint(plSeg, 10, 32)
	if err != nil {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}
	pl, ok := rt.Library.LookupPlaylist(uint32(plID))
	if !ok {
		return w.WriteError(daaperr.StatusOf(daaperr.ErrMalformedRequest), daaperr.BodyOf(daaperr.ErrMalformedRequest))
	}

	state := rt.playlistState(uint32(plID))
	state.Refresh(pl.ItemIDs(), rt.Revisions.Current())

	delta := req.QueryInt("delta")
	isDelta := delta > 0
	var deletedIDs []uint32
	if isDelta {
		deletedIDs = state.DeletedSince(delta)
	}
	return w.WriteDMAP(content.ContainerItems(state.Entries(), isDelta, deletedIDs))
}

func (rt *Router) playlistState(id uint32) *library.PlaylistState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.playlists[id]
	if !ok {
		s = library.NewPlaylistState()
		rt.playlists[id] = s
	}
	return s
}

func mimeForFormat(format string) string {
	switch format {
	case "mp3":
		return "mpeg"
	case "m4a", "aac":
		return "mp4"
	case "flac":
		return "flac"
	case "":
		return "octet-stream"
	default:
		return format
	}
}
