package services

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"netsentry/models"
)

const (
	profileShards = 64
	// historyCap bounds the per-address history so a long-lived source
	// cannot grow memory without limit. Once full, each new sample evicts
	// the oldest one and the running sums follow the window.
	historyCap = 512
)

// ProfileSnapshot is an immutable view of a source's rolling profile,
// taken at observation time for immediate classification.
type ProfileSnapshot struct {
	Address        string
	RequestCount   int64
	FirstSeen      time.Time
	AvgBytes       float64
	IntervalStdDev float64
	IntervalCount  int64
}

// ipProfile is the mutable per-address state. It is only touched while the
// owning shard lock is held.
type ipProfile struct {
	firstSeen    time.Time
	requestCount int64

	lastArrival time.Time
	hasArrival  bool

	// bounded recent history, with running sums over the window
	bytes     ring
	intervals ring

	byteSum       float64
	intervalSum   float64
	intervalSumSq float64
}

type profileShard struct {
	mu       sync.Mutex
	profiles map[string]*ipProfile
}

// TrafficProfiler maintains one rolling behavioral profile per source
// address. State is sharded so mutations for different addresses proceed in
// parallel; mutations for the same address are serialized by its shard lock.
type TrafficProfiler struct {
	shards [profileShards]*profileShard
}

func NewTrafficProfiler() *TrafficProfiler {
	p := &TrafficProfiler{}
	for i := range p.shards {
		p.shards[i] = &profileShard{profiles: make(map[string]*ipProfile)}
	}
	return p
}

func (p *TrafficProfiler) shardFor(address string) *profileShard {
	h := fnv.New32a()
	h.Write([]byte(address))
	return p.shards[h.Sum32()%profileShards]
}

// Observe folds one traffic event into the address profile and returns a
// snapshot for the classifier. The first event for an address initializes
// the profile with empty histories; subsequent events append the byte count
// and, once two arrivals exist, the inter-arrival interval.
func (p *TrafficProfiler) Observe(event models.TrafficEvent) ProfileSnapshot {
	shard := p.shardFor(event.IP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	prof, ok := shard.profiles[event.IP]
	if !ok {
		prof = &ipProfile{
			firstSeen:    event.ArrivalTime,
			requestCount: 1,
		}
		prof.bytes.init(historyCap)
		prof.intervals.init(historyCap)
		shard.profiles[event.IP] = prof
		return prof.snapshot(event.IP)
	}

	prof.requestCount++

	if prof.hasArrival {
		interval := event.ArrivalTime.Sub(prof.lastArrival).Seconds()
		if old, evicted := prof.intervals.push(interval); evicted {
			prof.intervalSum -= old
			prof.intervalSumSq -= old * old
		}
		prof.intervalSum += interval
		prof.intervalSumSq += interval * interval
	}

	sent := float64(event.BytesSent)
	if old, evicted := prof.bytes.push(sent); evicted {
		prof.byteSum -= old
	}
	prof.byteSum += sent

	prof.lastArrival = event.ArrivalTime
	prof.hasArrival = true

	return prof.snapshot(event.IP)
}

// Size returns the number of tracked addresses.
func (p *TrafficProfiler) Size() int {
	total := 0
	for _, shard := range p.shards {
		shard.mu.Lock()
		total += len(shard.profiles)
		shard.mu.Unlock()
	}
	return total
}

func (prof *ipProfile) snapshot(address string) ProfileSnapshot {
	snap := ProfileSnapshot{
		Address:       address,
		RequestCount:  prof.requestCount,
		FirstSeen:     prof.firstSeen,
		IntervalCount: int64(prof.intervals.len()),
	}
	if n := prof.bytes.len(); n > 0 {
		snap.AvgBytes = prof.byteSum / float64(n)
	}
	if n := prof.intervals.len(); n > 0 {
		mean := prof.intervalSum / float64(n)
		// population variance; clamp against float drift
		variance := prof.intervalSumSq/float64(n) - mean*mean
		if variance > 0 {
			snap.IntervalStdDev = math.Sqrt(variance)
		}
	}
	return snap
}

// ring is a fixed-capacity float buffer that overwrites its oldest entry
// once full. push reports the evicted value so callers can keep running
// sums aligned with the window.
type ring struct {
	buf  []float64
	head int
}

func (r *ring) init(capacity int) {
	r.buf = make([]float64, 0, capacity)
}

func (r *ring) push(v float64) (evicted float64, wasFull bool) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return 0, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, true
}

func (r *ring) len() int {
	return len(r.buf)
}
