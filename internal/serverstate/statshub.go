package serverstate

import (
	"sync"
	"time"
)

// StatsPoint is an aggregated per-minute counter.
type StatsPoint struct {
	MinuteUnix int64
	Requests   uint64
	Errors     uint64
	BytesIn    uint64
	BytesOut   uint64
}

// StatsSnapshot is a point-in-time view of collected stats.
type StatsSnapshot struct {
	StartedUnix int64
	NowUnix     int64
	UptimeSec   int64
	TotalReq    uint64
	TotalErr    uint64
	BytesIn     uint64
	BytesOut    uint64
	AvgMs       uint64
	ByPath      map[string]uint64
	Recent      []StatsPoint
}

// StatsHub keeps lightweight counters over the server's request traffic,
// bucketed per minute over a 60-minute ring, the same shape as the
// teacher's statsHub with the byte-sized opcode index replaced by a path
// string key.
type StatsHub struct {
	mu sync.Mutex

	started time.Time

	totalReq   uint64
	totalErr   uint64
	bytesIn    uint64
	bytesOut   uint64
	totalDurMs uint64

	byPath map[string]uint64

	curMin  int64
	idx     int
	minUnix [60]int64
	req     [60]uint64
	err     [60]uint64
	in      [60]uint64
	out     [60]uint64
}

func NewStatsHub() *StatsHub {
	now := time.Now()
	m := now.Unix() / 60
	h := &StatsHub{started: now, curMin: m, byPath: make(map[string]uint64)}
	h.minUnix[0] = m * 60
	return h
}

func (h *StatsHub) advanceLocked(targetMin int64) {
	if targetMin <= h.curMin {
		return
	}
	for h.curMin < targetMin {
		h.curMin++
		h.idx = (h.idx + 1) % len(h.req)
		h.minUnix[h.idx] = h.curMin * 60
		h.req[h.idx] = 0
		h.err[h.idx] = 0
		h.in[h.idx] = 0
		h.out[h.idx] = 0
	}
}

// Add records one completed request.
func (h *StatsHub) Add(path string, httpStatus int, reqBytes, respBytes int, durMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	nowMin := time.Now().Unix() / 60
	h.advanceLocked(nowMin)

	h.totalReq++
	h.byPath[path]++
	h.req[h.idx]++

	if httpStatus >= 400 {
		h.totalErr++
		h.err[h.idx]++
	}
	if reqBytes > 0 {
		h.bytesIn += uint64(reqBytes)
		h.in[h.idx] += uint64(reqBytes)
	}
	if respBytes > 0 {
		h.bytesOut += uint64(respBytes)
		h.out[h.idx] += uint64(respBytes)
	}
	if durMs > 0 {
		h.totalDurMs += uint64(durMs)
	}
}

// Snapshot returns the current aggregate view.
func (h *StatsHub) Snapshot() StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	nowMin := now.Unix() / 60
	h.advanceLocked(nowMin)

	by := make(map[string]uint64, len(h.byPath))
	for k, v := range h.byPath {
		by[k] = v
	}

	recent := make([]StatsPoint, 0, len(h.req))
	n := len(h.req)
	for i := 0; i < n; i++ {
		j := (h.idx + 1 + i) % n
		if h.minUnix[j] == 0 {
			continue
		}
		recent = append(recent, StatsPoint{
			MinuteUnix: h.minUnix[j],
			Requests:   h.req[j],
			Errors:     h.err[j],
			BytesIn:    h.in[j],
			BytesOut:   h.out[j],
		})
	}

	avg := uint64(0)
	if h.totalReq > 0 {
		avg = h.totalDurMs / h.totalReq
	}

	return StatsSnapshot{
		StartedUnix: h.started.Unix(),
		NowUnix:     now.Unix(),
		UptimeSec:   int64(now.Sub(h.started).Seconds()),
		TotalReq:    h.totalReq,
		TotalErr:    h.totalErr,
		BytesIn:     h.bytesIn,
		BytesOut:    h.bytesOut,
		AvgMs:       avg,
		ByPath:      by,
		Recent:      recent,
	}
}
