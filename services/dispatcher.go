package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"netsentry/models"
	"netsentry/storage"
	"netsentry/system"
)

// AttackPatternCollection is the event store collection holding detections.
const AttackPatternCollection = "attack-patterns"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // ingest runs on an internal listener
	},
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Dispatcher orchestrates the event pipeline: receive event, profile,
// classify, consult the blocking policy, persist, broadcast. Each websocket
// connection is both an event source and an analysis subscriber. No single
// event failure stops the loop.
type Dispatcher struct {
	profiler   *TrafficProfiler
	classifier *PatternClassifier
	blocker    *IPBlocker
	cache      *storage.Cache
	store      *storage.EventStore
	geoip      *GeoIPService

	alertTTL time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

func NewDispatcher(profiler *TrafficProfiler, classifier *PatternClassifier, blocker *IPBlocker,
	cache *storage.Cache, store *storage.EventStore, geoip *GeoIPService, alertTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		profiler:    profiler,
		classifier:  classifier,
		blocker:     blocker,
		cache:       cache,
		store:       store,
		geoip:       geoip,
		alertTTL:    alertTTL,
		now:         time.Now,
		subscribers: make(map[string]*subscriber),
	}
}

// ServeWS upgrades the connection and runs the ingest loop until the peer
// disconnects. Malformed events are dropped and logged; the loop continues.
func (d *Dispatcher) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		system.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	sub := &subscriber{conn: conn}

	d.mu.Lock()
	d.subscribers[id] = sub
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				system.Warn("WebSocket read error: %v", err)
			}
			return
		}

		var raw struct {
			IP        string  `json:"ip"`
			BytesSent float64 `json:"bytes_sent"`
		}
		if err := json.Unmarshal(data, &raw); err != nil || raw.IP == "" {
			system.Warn("Dropping malformed ingest event: %s", truncate(string(data), 200))
			continue
		}

		analysis := d.Process(models.TrafficEvent{
			IP:          raw.IP,
			BytesSent:   int64(raw.BytesSent),
			ArrivalTime: d.now(),
		})
		d.Broadcast(analysis)
	}
}

// Process runs one event through the full pipeline and returns the enriched
// analysis. Persistence and blocking happen here; broadcast is the caller's
// choice.
func (d *Dispatcher) Process(event models.TrafficEvent) models.AttackAnalysis {
	snapshot := d.profiler.Observe(event)
	analysis := d.classifier.Classify(snapshot, event.ArrivalTime)

	location := d.geoip.Locate(event.IP)
	analysis.Location = &location

	if analysis.PatternDetected {
		d.persistDetection(analysis)

		if !analysis.Blocked && d.blocker.ShouldAutoBlock(event.IP, analysis.ThreatLevel, analysis.AttackType) {
			reason := fmt.Sprintf("Automatic block: %s detected", analysis.AttackType)
			if d.blocker.BlockIP(event.IP, reason, analysis.ThreatLevel, analysis.AttackType, true) {
				analysis.Blocked = true
			}
		}
	}

	return analysis
}

func (d *Dispatcher) persistDetection(analysis models.AttackAnalysis) {
	now := d.now()
	ts := float64(now.UnixNano()) / float64(time.Second)

	_, err := d.store.Index(AttackPatternCollection, storage.Document{
		"timestamp":     ts,
		"ip":            analysis.IP,
		"attack_type":   analysis.AttackType,
		"confidence":    analysis.Confidence,
		"threat_level":  analysis.ThreatLevel,
		"request_count": analysis.RequestCount,
		"duration":      analysis.Duration,
	}, "")
	if err != nil {
		system.Error("Error storing attack data for %s: %v", analysis.IP, err)
	}

	alertKey := fmt.Sprintf("attack:%s:%d", analysis.IP, now.UnixNano())
	if !d.cache.Set(alertKey, analysis, d.alertTTL) {
		system.Warn("Failed to cache alert for %s", analysis.IP)
	}
}

// Broadcast sends an analysis to every connected subscriber. Write failures
// drop the subscriber; they are never retried.
func (d *Dispatcher) Broadcast(analysis models.AttackAnalysis) {
	d.mu.RLock()
	subs := make(map[string]*subscriber, len(d.subscribers))
	for id, sub := range d.subscribers {
		subs[id] = sub
	}
	d.mu.RUnlock()

	for id, sub := range subs {
		if err := sub.writeJSON(analysis); err != nil {
			system.Warn("Dropping subscriber %s: %v", id, err)
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
			sub.conn.Close()
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
