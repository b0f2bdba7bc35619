package main

import (
	"log"
	"sync"
	"time"
)

const journalBatchSize = 50

// Journal persists needle events with batched background writes
type Journal struct {
	db       *DB
	events   chan EventRow
	stop     chan struct{}
	wg       sync.WaitGroup
	interval time.Duration

	mu      sync.Mutex
	dropped int
	once    sync.Once
}

// NewJournal creates and starts the background writer
func NewJournal(db *DB, cfg JournalConfig) *Journal {
	interval, err := time.ParseDuration(cfg.FlushInterval)
	if err != nil || interval <= 0 {
		interval = time.Second
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	j := &Journal{
		db:       db,
		events:   make(chan EventRow, size),
		stop:     make(chan struct{}),
		interval: interval,
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Track enqueues an event for async persistence (non-blocking)
func (j *Journal) Track(sessionID string, e Event) {
	row := EventRow{
		SessionID: sessionID,
		Type:      e.Type,
		NeedleID:  e.NeedleID,
		EntityID:  e.EntityID,
		FromState: e.From,
		ToState:   e.To,
		X:         e.Position.X(),
		Y:         e.Position.Y(),
		Z:         e.Position.Z(),
		SimTime:   e.Time,
		Detail:    e.Detail,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case j.events <- row:
	default:
		// Channel full, drop the event rather than block the game loop
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

// Sink binds the journal to one session. A nil journal yields a nil sink.
func (j *Journal) Sink(sessionID string) EventSink {
	if j == nil {
		return nil
	}
	return EventSinkFunc(func(e Event) { j.Track(sessionID, e) })
}

// Dropped returns how many events were discarded on a full buffer
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Recent returns the newest journaled events
func (j *Journal) Recent(sessionID string, limit int) ([]EventRow, error) {
	return j.db.RecentEvents(sessionID, limit)
}

// Counts returns journaled event counts per type
func (j *Journal) Counts(sessionID string) (map[string]int, error) {
	return j.db.EventCounts(sessionID)
}

// Close stops the writer after flushing everything queued
func (j *Journal) Close() {
	j.once.Do(func() {
		close(j.stop)
		j.wg.Wait()
	})
}

// writer is the background goroutine that batches and writes events to DB
func (j *Journal) writer() {
	defer j.wg.Done()

	batch := make([]EventRow, 0, journalBatchSize)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case row := <-j.events:
			batch = append(batch, row)
			if len(batch) >= journalBatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-j.stop:
			for {
				select {
				case row := <-j.events:
					batch = append(batch, row)
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (j *Journal) flush(rows []EventRow) {
	if j.db == nil || len(rows) == 0 {
		return
	}
	if err := j.db.InsertEvents(rows); err != nil {
		log.Printf("journal: insert error: %v", err)
	}
}
