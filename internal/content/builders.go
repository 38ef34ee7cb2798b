// Package content builds the canonical DMAP response trees for each DAAP
// endpoint. Every function here is a pure transform over plain data (never
// a live library or session call) so each response shape is independently
// testable, matching spec.md §4.2's "pure functions over the library
// adapter and revision state".
package content

import (
	"strings"

	"daap-server/internal/dmap"
	"daap-server/internal/library"
)

// AuthMethod mirrors the three auth modes the config table supports.
type AuthMethod uint8

const (
	AuthNone AuthMethod = 0
	AuthPassword AuthMethod = 1
	AuthUserAndPassword AuthMethod = 2
)

// ServerInfoParams bundles what /server-info needs to report.
type ServerInfoParams struct {
	Name        string
	DatabaseCnt uint32
	Auth        AuthMethod
	TimeoutSec  uint32
}

// ServerInfo builds the msrv response: status 200, DMAP/DAAP protocol
// versions, server name, auth method, timeout, database count.
func ServerInfo(p ServerInfoParams) dmap.Node {
	return dmap.Container("msrv",
		dmap.U32("mstt", 200),
		dmap.Ver("mpro", 3, 0),
		dmap.Ver("apro", 3, 0),
		dmap.Str("minm", p.Name),
		dmap.U8("msau", uint8(p.Auth)),
		dmap.U8("mslr", 1),
		dmap.U8("msal", 1),
		dmap.U32("mstm", p.TimeoutSec),
		dmap.U32("msdc", p.DatabaseCnt),
		dmap.U8("mspi", 1),
		dmap.U8("msex", 0),
		dmap.U8("msup", 1),
	)
}

// ContentCodes builds the mccr response enumerating the bundled code bag:
// the compatibility contract clients rely on to interpret every other
// response.
func ContentCodes(reg *dmap.Registry) dmap.Node {
	n := dmap.Container("mccr", dmap.U32("mstt", 200))
	for _, c := range reg.All() {
		n = n.Append(dmap.Container("mdcl",
			dmap.Str("mcnm", c.Code),
			dmap.Str("mcna", c.Name),
			dmap.U16("mcty", wireTypeOf(c.Kind)),
		))
	}
	return n
}

func wireTypeOf(k dmap.Kind) uint16 {
	switch k {
	case dmap.KindUint8, dmap.KindInt8:
		return 1
	case dmap.KindUint16, dmap.KindInt16:
		return 3
	case dmap.KindUint32, dmap.KindInt32:
		return 5
	case dmap.KindUint64, dmap.KindInt64:
		return 7
	case dmap.KindString:
		return 9
	case dmap.KindTimestamp:
		return 10
	case dmap.KindVersion:
		return 11
	case dmap.KindContainer:
		return 12
	default:
		return 1
	}
}

// Login builds the mlog response for a freshly issued session.
func Login(sessionID uint32) dmap.Node {
	return dmap.Container("mlog",
		dmap.U32("mstt", 200),
		dmap.U32("mlid", sessionID),
	)
}

// Update builds the mupd response carrying the revision a client should
// poll against next.
func Update(revision uint32) dmap.Node {
	return dmap.Container("mupd",
		dmap.U32("mstt", 200),
		dmap.U32("musr", revision),
	)
}

// Databases builds the avdb response: exactly one database entry, per
// spec.md's single-database scope.
func Databases(dbID uint32, dbName string, trackCount int) dmap.Node {
	entry := dmap.Container("mlit",
		dmap.U32("miid", dbID),
		dmap.Str("minm", dbName),
		dmap.U32("mimc", uint32(trackCount)),
	)
	return dmap.Container("avdb",
		dmap.U32("mstt", 200),
		dmap.U8("muty", 0),
		dmap.U32("mtco", 1),
		dmap.U32("mrco", 1),
		dmap.Container("mlcl", entry),
	)
}

// metaFieldBuilders is the fixed set of per-track fields ever emitted,
// mapped to how to pull the value out of a library.Track. Unknown names
// in a client's ?meta= query are silently ignored, per spec.md §4.2.
var metaFieldBuilders = map[string]func(library.Track) dmap.Node{
	"dmap.itemid":            func(t library.Track) dmap.Node { return dmap.U32("miid", t.ItemID) },
	"dmap.itemname":          func(t library.Track) dmap.Node { return dmap.Str("minm", t.Title) },
	"dmap.itemkind":          func(t library.Track) dmap.Node { return dmap.U8("mikd", 2) },
	"dmap.persistentid":      func(t library.Track) dmap.Node { return dmap.U64("mper", uint64(t.ItemID)) },
	"daap.songalbum":         func(t library.Track) dmap.Node { return dmap.Str("asal", t.Album) },
	"daap.songartist":        func(t library.Track) dmap.Node { return dmap.Str("asar", t.Artist) },
	"daap.songgenre":         func(t library.Track) dmap.Node { return dmap.Str("asgn", t.Genre) },
	"daap.songtracknumber":   func(t library.Track) dmap.Node { return dmap.U16("astn", t.Track) },
	"daap.songtrackcount":    func(t library.Track) dmap.Node { return dmap.U16("astc", t.TrackCnt) },
	"daap.songdiscnumber":    func(t library.Track) dmap.Node { return dmap.U16("asdn", t.Disc) },
	"daap.songdisccount":     func(t library.Track) dmap.Node { return dmap.U16("asdc", t.DiscCnt) },
	"daap.songtime":          func(t library.Track) dmap.Node { return dmap.U32("astm", t.Duration) },
	"daap.songformat":        func(t library.Track) dmap.Node { return dmap.Str("asfm", t.Format) },
	"daap.songbitrate":       func(t library.Track) dmap.Node { return dmap.U16("asbr", t.Bitrate) },
	"daap.songsize":          func(t library.Track) dmap.Node { return dmap.U32("assz", t.Size) },
	"daap.songyear":          func(t library.Track) dmap.Node { return dmap.U16("asyr", t.Year) },
	"daap.songdatakind":      func(t library.Track) dmap.Node { return dmap.U8("asdk", 0) },
}

// ParseMeta splits a comma-separated ?meta= query value into the field
// names it names, dropping blanks.
func ParseMeta(meta string) []string {
	if meta == "" {
		return nil
	}
	parts := strings.Split(meta, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trackNode(t library.Track, fields []string) dmap.Node {
	n := dmap.Container("mlit")
	for _, f := range fields {
		build, ok := metaFieldBuilders[f]
		if !ok {
			continue // unknown field names are silently ignored
		}
		n = n.Append(build(t))
	}
	return n
}

// Items builds the adbs response for /databases/{db}/items: full (muty=0)
// or delta (muty=1) depending on delta, with one mlit per track selected
// by fields, and, for a delta, an mudl listing deletedIDs.
func Items(tracks []library.Track, fields []string, delta bool, deletedIDs []uint32) dmap.Node {
	listing := dmap.Container("mlcl")
	for _, t := range tracks {
		listing = listing.Append(trackNode(t, fields))
	}

	muty := uint8(0)
	if delta {
		muty = 1
	}

	n := dmap.Container("adbs",
		dmap.U32("mstt", 200),
		dmap.U8("muty", muty),
		dmap.U32("mtco", uint32(len(tracks))),
		dmap.U32("mrco", uint32(len(tracks))),
		listing,
	)
	if delta {
		n = n.Append(deletionListing(deletedIDs))
	}
	return n
}

func deletionListing(ids []uint32) dmap.Node {
	n := dmap.Container("mudl")
	for _, id := range ids {
		n = n.Append(dmap.U32("miid", id))
	}
	return n
}

// Containers builds the aply response listing every playlist, base
// playlist (id 1) included.
func Containers(playlists []library.Playlist) dmap.Node {
	listing := dmap.Container("mlcl")
	for _, p := range playlists {
		entry := dmap.Container("mlit",
			dmap.U32("miid", p.PlaylistID),
			dmap.Str("minm", p.Name),
			dmap.U32("mimc", uint32(len(p.Entries))),
		)
		if p.PlaylistID == 1 {
			entry = entry.Append(dmap.U8("abpl", 1))
		}
		listing = listing.Append(entry)
	}
	return dmap.Container("aply",
		dmap.U32("mstt", 200),
		dmap.U8("muty", 0),
		dmap.U32("mtco", uint32(len(playlists))),
		dmap.U32("mrco", uint32(len(playlists))),
		listing,
	)
}

// ContainerItems builds the apso response for
// /databases/{db}/containers/{pl}/items: one mlit per entry carrying its
// item id and playlist-local container id, plus an optional mudl.
func ContainerItems(entries []library.PlaylistEntry, delta bool, deletedIDs []uint32) dmap.Node {
	listing := dmap.Container("mlcl")
	for _, e := range entries {
		listing = listing.Append(dmap.Container("mlit",
			dmap.U32("miid", e.ItemID),
			dmap.U32("mcti", e.ContainerID),
		))
	}

	muty := uint8(0)
	if delta {
		muty = 1
	}

	n := dmap.Container("apso",
		dmap.U32("mstt", 200),
		dmap.U8("muty", muty),
		dmap.U32("mtco", uint32(len(entries))),
		dmap.U32("mrco", uint32(len(entries))),
		listing,
	)
	if delta {
		n = n.Append(deletionListing(deletedIDs))
	}
	return n
}
