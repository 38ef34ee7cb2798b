package dmap

import "sort"

// CodeInfo is one entry in a Registry: the human-readable DMAP name and the
// Kind the code's value is always encoded with.
type CodeInfo struct {
	Code string
	Name string
	Kind Kind
}

// Registry is the compatibility contract with clients: a fixed table
// mapping each 4-byte content code to its name and wire type. The server
// bundles one default registry (DefaultRegistry); callers needing a
// different or extended code bag can build their own with NewRegistry.
type Registry struct {
	byCode map[string]CodeInfo
	byName map[string]string // dotted name -> code
}

// NewRegistry builds a Registry from a literal list of entries. The order
// of entries does not matter: All enumerates them sorted by code.
func NewRegistry(entries []CodeInfo) *Registry {
	r := &Registry{
		byCode: make(map[string]CodeInfo, len(entries)),
		byName: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		r.byCode[e.Code] = e
		r.byName[e.Name] = e.Code
	}
	return r
}

// Lookup returns the CodeInfo for a 4-byte code.
func (r *Registry) Lookup(code string) (CodeInfo, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

// KindOf implements the kindOf callback Decode expects.
func (r *Registry) KindOf(code string) (Kind, bool) {
	c, ok := r.byCode[code]
	if !ok {
		return 0, false
	}
	return c.Kind, true
}

// CodeForName resolves a dotted DMAP name (e.g. "dmap.itemid") to its
// 4-byte code. Used to translate a client's ?meta=... query.
func (r *Registry) CodeForName(name string) (string, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns every registered entry, sorted by code for deterministic
// iteration (the /content-codes response must be stable across requests
// with identical inputs).
func (r *Registry) All() []CodeInfo {
	out := make([]CodeInfo, 0, len(r.byCode))
	for _, c := range r.byCode {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// wireType is the conventional DMAP content-codes numeric type id for each
// Kind, as reported in an mcty field of /content-codes. This is purely
// informational (the codec itself never reads it) but clients expect it.
func wireType(k Kind) uint16 {
	switch k {
	case KindUint8:
		return 1
	case KindInt8:
		return 2
	case KindUint16:
		return 3
	case KindInt16:
		return 4
	case KindUint32:
		return 5
	case KindInt32:
		return 6
	case KindUint64:
		return 7
	case KindInt64:
		return 8
	case KindString:
		return 9
	case KindTimestamp:
		return 10
	case KindVersion:
		return 11
	case KindContainer:
		return 12
	default:
		return 1
	}
}

// DefaultRegistry returns the fixed code bag bundled with the server: the
// codes used by server-info, login, update, the database/track/playlist
// listings, and deletion listings, plus the daap.* track-metadata
// namespace. This table is the compatibility contract referenced in
// /content-codes.
func DefaultRegistry() *Registry {
	return NewRegistry([]CodeInfo{
		// Top-level / container responses.
		{"msrv", "dmap.serverinforesponse", KindContainer},
		{"mccr", "dmap.contentcodesresponse", KindContainer},
		{"mlog", "dmap.loginresponse", KindContainer},
		{"mupd", "dmap.updateresponse", KindContainer},
		{"avdb", "daap.serverdatabases", KindContainer},
		{"adbs", "daap.databasesongs", KindContainer},
		{"aply", "daap.databaseplaylists", KindContainer},
		{"apso", "daap.playlistsongs", KindContainer},
		{"mlcl", "dmap.listing", KindContainer},
		{"mlit", "dmap.listingitem", KindContainer},
		{"mudl", "dmap.deletedidlisting", KindContainer},
		{"mdcl", "dmap.dictionary", KindContainer},

		// Status / counters / identity.
		{"mstt", "dmap.status", KindUint32},
		{"muty", "dmap.updatetype", KindUint8},
		{"mtco", "dmap.specifiedtotalcount", KindUint32},
		{"mrco", "dmap.returnedcount", KindUint32},
		{"mlid", "dmap.sessionid", KindUint32},
		{"musr", "dmap.serverrevision", KindUint32},
		{"mpro", "dmap.protocolversion", KindVersion},
		{"apro", "daap.protocolversion", KindVersion},
		{"minm", "dmap.itemname", KindString},
		{"miid", "dmap.itemid", KindUint32},
		{"mper", "dmap.persistentid", KindUint64},
		{"mikd", "dmap.itemkind", KindUint8},
		{"mctc", "dmap.containercount", KindUint32},
		{"mcti", "dmap.containeritemid", KindUint32},
		{"mpco", "dmap.parentcontainerid", KindUint32},
		{"mimc", "dmap.itemcount", KindUint32},
		{"msau", "dmap.authenticationmethod", KindUint8},
		{"mstm", "dmap.timeoutinterval", KindUint32},
		{"msdc", "dmap.databasescount", KindUint32},
		{"msal", "dmap.supportsautologout", KindUint8},
		{"mslr", "dmap.loginrequired", KindUint8},
		{"mspi", "dmap.supportspersistentids", KindUint8},
		{"msex", "dmap.supportsextensions", KindUint8},
		{"msup", "dmap.supportsupdate", KindUint8},
		{"abpl", "daap.baseplaylist", KindUint8},
		{"mcnm", "dmap.contentcodesnumber", KindString},
		{"mcna", "dmap.contentcodesname", KindString},
		{"mcty", "dmap.contentcodestype", KindUint16},

		// daap.* track metadata.
		{"asal", "daap.songalbum", KindString},
		{"asar", "daap.songartist", KindString},
		{"asgn", "daap.songgenre", KindString},
		{"astn", "daap.songtracknumber", KindUint16},
		{"astc", "daap.songtrackcount", KindUint16},
		{"asdn", "daap.songdiscnumber", KindUint16},
		{"asdc", "daap.songdisccount", KindUint16},
		{"astm", "daap.songtime", KindUint32},
		{"asfm", "daap.songformat", KindString},
		{"asbr", "daap.songbitrate", KindUint16},
		{"assz", "daap.songsize", KindUint32},
		{"asyr", "daap.songyear", KindUint16},
		{"asdk", "daap.songdatakind", KindUint8},
		{"asul", "daap.songdataurl", KindString},
	})
}
