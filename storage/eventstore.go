package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"netsentry/system"
)

// Document is one entry in an EventStore collection.
type Document map[string]interface{}

// RangeBounds is a numeric range filter with independent bounds.
type RangeBounds struct {
	GTE *float64
	LTE *float64
	GT  *float64
	LT  *float64
}

// Query filters a search. Term matches are exact equality; Range matches
// apply numeric bounds. A nil query matches every document.
type Query struct {
	Term  map[string]interface{}
	Range map[string]RangeBounds
}

// SearchResult is one page of matching documents plus the total match count.
type SearchResult struct {
	Total int
	Hits  []Document
}

// EventStore is an append-only document log organized into independently
// named collections, one segment file per collection. Inserts never rewrite
// prior entries; delete and cleanup rewrite the collection without the
// removed documents.
type EventStore struct {
	dataDir string
	mu      sync.Mutex
	now     func() time.Time
}

func NewEventStore(dataDir string) (*EventStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event store directory: %w", err)
	}
	return &EventStore{dataDir: dataDir, now: time.Now}, nil
}

func (s *EventStore) segmentPath(collection string) (string, error) {
	if collection == "" || strings.ContainsAny(collection, "/\\") {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return filepath.Join(s.dataDir, collection+".jsonl"), nil
}

// Index appends a document to a collection and returns its id. When id is
// empty one is generated from the current time and a content hash. A
// server-side timestamp is stamped unless the document carries its own.
func (s *EventStore) Index(collection string, doc Document, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.segmentPath(collection)
	if err != nil {
		system.Error("Failed to index document: %v", err)
		return "", err
	}

	stored := make(Document, len(doc)+2)
	for k, v := range doc {
		stored[k] = v
	}

	if id == "" {
		id = s.generateID(stored)
	}
	stored["_id"] = id
	if _, ok := stored["timestamp"]; !ok {
		stored["timestamp"] = float64(s.now().UnixNano()) / float64(time.Second)
	}

	line, err := json.Marshal(stored)
	if err != nil {
		system.Error("Failed to encode document for %s: %v", collection, err)
		return "", err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		system.Error("Failed to open collection %s: %v", collection, err)
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		system.Error("Failed to append to collection %s: %v", collection, err)
		return "", err
	}
	return id, nil
}

func (s *EventStore) generateID(doc Document) string {
	h := fnv.New32a()
	if data, err := json.Marshal(doc); err == nil {
		h.Write(data)
	}
	return fmt.Sprintf("%d_%04d", s.now().UnixMilli(), h.Sum32()%10000)
}

// Search returns one page of documents matching q, in append order.
func (s *EventStore) Search(collection string, q *Query, size, offset int) SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.readAll(collection)
	matched := docs[:0:0]
	for _, doc := range docs {
		if matchQuery(doc, q) {
			matched = append(matched, doc)
		}
	}

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if size >= 0 && offset+size < end {
		end = offset + size
	}

	return SearchResult{Total: total, Hits: matched[offset:end]}
}

// Get returns the document with the given id, if present.
func (s *EventStore) Get(collection, id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.readAll(collection) {
		if doc["_id"] == id {
			return doc, true
		}
	}
	return nil, false
}

// Delete removes exactly the document with the given id by rewriting the
// collection without it.
func (s *EventStore) Delete(collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.readAll(collection)
	kept := docs[:0:0]
	found := false
	for _, doc := range docs {
		if !found && doc["_id"] == id {
			found = true
			continue
		}
		kept = append(kept, doc)
	}
	if !found {
		return false
	}
	if err := s.rewrite(collection, kept); err != nil {
		system.Error("Failed to delete document %s from %s: %v", id, collection, err)
		return false
	}
	return true
}

// Stats returns the document count and segment size for a collection.
func (s *EventStore) Stats(collection string) (count int, sizeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count = len(s.readAll(collection))
	path, err := s.segmentPath(collection)
	if err != nil {
		return count, 0
	}
	if info, err := os.Stat(path); err == nil {
		sizeBytes = info.Size()
	}
	return count, sizeBytes
}

// Cleanup removes documents whose stamped timestamp is older than the
// retention window and returns the count removed.
func (s *EventStore) Cleanup(collection string, daysToKeep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := float64(s.now().Add(-time.Duration(daysToKeep)*24*time.Hour).UnixNano()) / float64(time.Second)

	docs := s.readAll(collection)
	kept := docs[:0:0]
	removed := 0
	for _, doc := range docs {
		if ts, ok := numericField(doc, "timestamp"); ok && ts < cutoff {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	if removed == 0 {
		return 0
	}
	if err := s.rewrite(collection, kept); err != nil {
		system.Error("Failed to clean up collection %s: %v", collection, err)
		return 0
	}
	system.Info("Cleaned up %d old documents from %s", removed, collection)
	return removed
}

func (s *EventStore) readAll(collection string) []Document {
	path, err := s.segmentPath(collection)
	if err != nil {
		system.Error("Failed to read collection: %v", err)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			system.Error("Failed to open collection %s: %v", collection, err)
		}
		return nil
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			// Skip corrupted lines, keep the rest of the segment usable
			continue
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		system.Error("Failed to scan collection %s: %v", collection, err)
	}
	return docs
}

func (s *EventStore) rewrite(collection string, docs []Document) error {
	path, err := s.segmentPath(collection)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, doc := range docs {
		line, err := json.Marshal(doc)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func matchQuery(doc Document, q *Query) bool {
	if q == nil {
		return true
	}
	for field, want := range q.Term {
		if !equalValues(doc[field], want) {
			return false
		}
	}
	for field, bounds := range q.Range {
		val, ok := numericField(doc, field)
		if !ok {
			return false
		}
		if bounds.GTE != nil && val < *bounds.GTE {
			return false
		}
		if bounds.LTE != nil && val > *bounds.LTE {
			return false
		}
		if bounds.GT != nil && val <= *bounds.GT {
			return false
		}
		if bounds.LT != nil && val >= *bounds.LT {
			return false
		}
	}
	return true
}

func equalValues(got, want interface{}) bool {
	if g, ok := toFloat(got); ok {
		if w, ok := toFloat(want); ok {
			return g == w
		}
	}
	return got == want
}

func numericField(doc Document, field string) (float64, bool) {
	return toFloat(doc[field])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
