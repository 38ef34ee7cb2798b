// Package server wires together the config, logger, library adapter,
// session/revision managers, DMAP router, mDNS advertiser, and HTTP
// listener into one runnable DAAP server. It follows the teacher's
// bootstrap.go wiring shape (build dependencies, start the accept loop,
// register a maintenance loop, expose a Stop that tears everything down)
// generalized from W64F/disk-image serving to DAAP.
package server

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daap-server/internal/advertise"
	"daap-server/internal/config"
	"daap-server/internal/content"
	"daap-server/internal/dmap"
	"daap-server/internal/httpio"
	"daap-server/internal/library"
	"daap-server/internal/revision"
	"daap-server/internal/router"
	"daap-server/internal/serverstate"
	"daap-server/internal/session"
)

// Server owns the full set of running goroutines for one DAAP instance:
// the HTTP accept loop, the mDNS advertisement, the session-expiry
// maintenance loop, and (if the library adapter supports it) a
// filesystem watch loop.
type Server struct {
	cfg    config.Config
	log    *zap.Logger
	logHub *serverstate.LogHub
	stats  *serverstate.StatsHub

	registry  *dmap.Registry
	library   library.Adapter
	sessions  *session.Manager
	revisions *revision.Manager
	router    *router.Router

	advertiser *advertise.Advertiser
	http       *httpio.Server
	listener   net.Listener

	configWatcher *config.Watcher
	configPath    string
	stopWatch     func()

	// machineID is the id advertised in the mDNS TXT record. It is
	// cfg.MachineID verbatim when set, or a generated uuid when the
	// operator left it blank, so restarts under the same name still carry
	// a stable-for-this-process disambiguator.
	machineID string

	stopMaintenance chan struct{}
}

// newLibraryAdapter builds the library.Adapter cfg.LibraryBackend selects:
// "fs" (default) scans LibraryPath directly, "mpd" sources tracks from a
// running MPD daemon.
func newLibraryAdapter(cfg config.Config) (library.Adapter, error) {
	switch cfg.LibraryBackend {
	case "mpd":
		return library.NewMPDAdapter(cfg.MPDNetwork, cfg.MPDAddress, cfg.MPDPassword, cfg.LibraryPath, cfg.Name)
	default:
		return library.NewFSAdapter(cfg.LibraryPath, cfg.Name, libraryDBPath(cfg.LibraryPath))
	}
}

// New builds a Server from cfg but starts nothing; call Run to start
// listening and Stop to tear it down.
func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	lib, err := newLibraryAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: opening library adapter: %w", err)
	}

	machineID := cfg.MachineID
	if machineID == "" {
		machineID = uuid.NewString()
	}

	registry := dmap.DefaultRegistry()
	sessions := session.New(cfg.MaxUsers, cfg.SessionTimeout())
	revisions := revision.New()

	rt := router.New(registry, lib, sessions, revisions)
	rt.ServerName = cfg.Name
	rt.Realm = cfg.Name
	rt.AuthMethod = authMethodFromConfig(cfg.AuthMethod)
	rt.Credentials = credentialsFromConfig(cfg.Credentials)
	rt.TimeoutSec = uint32(cfg.SessionTimeoutSec)

	s := &Server{
		cfg:             cfg,
		log:             log,
		logHub:          serverstate.NewLogHub(512),
		stats:           serverstate.NewStatsHub(),
		registry:        registry,
		library:         lib,
		sessions:        sessions,
		revisions:       revisions,
		advertiser:      advertise.New(),
		machineID:       machineID,
		stopMaintenance: make(chan struct{}),
	}
	rt.Log = s.logHookError
	s.router = rt

	root := library.NewPlaylistState()
	lib.SubscribeChanges(func() {
		removed := root.Refresh(trackIDs(lib.IterTracks()), revisions.Current())
		revisions.Bump(removed)
	})

	s.http = httpio.New(s.loggingHandler(rt.Handle), cfg.Name)
	s.http.RatePerSecond = cfg.ConnectionRateLimitPerSec
	s.http.Burst = cfg.ConnectionBurst

	return s, nil
}

func trackIDs(tracks []library.Track) []uint32 {
	ids := make([]uint32, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ItemID
	}
	return ids
}

func libraryDBPath(root string) string {
	return root + "/.daap-library.db"
}

func authMethodFromConfig(method string) content.AuthMethod {
	switch method {
	case "password":
		return content.AuthPassword
	case "user_and_password":
		return content.AuthUserAndPassword
	default:
		return content.AuthNone
	}
}

func credentialsFromConfig(creds []config.Credential) []router.Credential {
	out := make([]router.Credential, len(creds))
	for i, c := range creds {
		out[i] = router.Credential{Username: c.Username, Password: c.Password}
	}
	return out
}

func (s *Server) logHookError(msg string, err error) {
	s.log.Error("hook error", zap.String("hook", msg), zap.Error(err))
}

// loggingHandler wraps h so every request lands in logHub and statsHub
// before the connection moves on to the next keep-alive request, the
// same per-request bookkeeping shape as the teacher's accept-loop
// logging, generalized from W64F opcodes to DAAP request paths.
func (s *Server) loggingHandler(h httpio.Handler) httpio.Handler {
	return func(req *httpio.Request, w *httpio.ResponseWriter) error {
		start := time.Now()
		err := h(req, w)
		elapsed := time.Since(start)

		s.logHub.Add(serverstate.LogEntry{
			RemoteIP:   req.RemoteAddr,
			Method:     req.Method,
			Path:       req.Path,
			HTTPStatus: w.StatusCode,
			RespBytes:  int(w.BytesWritten),
			DurationMs: elapsed.Milliseconds(),
		})
		s.stats.Add(req.Path, w.StatusCode, 0, int(w.BytesWritten), elapsed.Milliseconds())

		s.log.Info("request",
			zap.String("remote_addr", req.RemoteAddr),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", w.StatusCode),
			zap.Int64("bytes", w.BytesWritten),
			zap.Duration("elapsed", elapsed),
		)

		return err
	}
}

// Run starts the HTTP listener, the mDNS advertisement (if enabled), the
// config hot-reload watcher (if enabled), and the session-expiry
// maintenance loop. It blocks until the listener is closed by Stop.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln

	if watchable, ok := s.library.(interface {
		WatchForChanges() (func(), error)
	}); ok {
		if stop, err := watchable.WatchForChanges(); err == nil {
			s.stopWatch = stop
		} else {
			s.log.Warn("library watch unavailable", zap.Error(err))
		}
	}

	if s.cfg.Publish {
		port := ln.Addr().(*net.TCPAddr).Port
		passwordRequired := s.router.AuthMethod != content.AuthNone
		if err := s.advertiser.RegisterWithCollisionRetry(s.cfg.Name, port, passwordRequired, s.machineID, 5); err != nil {
			s.log.Warn("mdns advertise failed", zap.Error(err))
		}
	}

	if s.cfg.ConfigReloadEnabled {
		w, err := config.WatchSafe(s.configFilePath(), s.applySafeReload, func(err error) {
			s.log.Warn("config reload failed", zap.Error(err))
		})
		if err != nil {
			s.log.Warn("config watch unavailable", zap.Error(err))
		} else {
			s.configWatcher = w
		}
	}

	go s.maintenanceLoop()

	s.log.Info("daap server listening",
		zap.String("addr", s.cfg.Listen),
		zap.String("name", s.cfg.Name),
		zap.String("auth_method", s.cfg.AuthMethod),
	)
	return s.http.Serve(ln)
}

// configFilePath is set by cmd/daapd; Server itself only watches once
// ConfigReloadEnabled is true and a path has been recorded via
// SetConfigPath.
func (s *Server) configFilePath() string {
	return s.configPath
}

// SetConfigPath records the file Run's config watcher should follow.
func (s *Server) SetConfigPath(path string) { s.configPath = path }

func (s *Server) applySafeReload(safe config.Safe) {
	s.router.AuthMethod = authMethodFromConfig(safe.AuthMethod)
	s.router.Credentials = credentialsFromConfig(safe.Credentials)
	s.router.TimeoutSec = uint32(safe.SessionTimeoutSec)
	s.log.Info("config reloaded",
		zap.String("auth_method", safe.AuthMethod),
		zap.Int("max_users", safe.MaxUsers),
	)
}

// maintenanceLoop periodically expires idle sessions, the same
// sleep-then-sweep shape the teacher's maintenance goroutine used for
// disk-image housekeeping, generalized to session expiry.
func (s *Server) maintenanceLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopMaintenance:
			return
		case <-ticker.C:
			expired := s.sessions.ExpireIdle(time.Now())
			if len(expired) > 0 {
				s.log.Debug("sessions expired", zap.Int("count", len(expired)))
			}
		}
	}
}

// Stop tears down every goroutine Run started, in this order: config
// watch, mDNS advertisement, library watch, maintenance loop, blocked
// /update long polls, the HTTP server's in-flight connections, then the
// listener and the library adapter.
func (s *Server) Stop() {
	if s.configWatcher != nil {
		s.configWatcher.Stop()
	}
	s.advertiser.Unregister()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	close(s.stopMaintenance)
	s.revisions.Stop()
	if s.http != nil {
		s.http.Stop()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if closer, ok := s.library.(interface{ Close() error }); ok {
		closer.Close()
	}
}
