// Package journal appends relay events to date-organized JSONL files so
// operators can see what was relayed after the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/threads_agent/internal/relay"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time       `json:"time"`
	Seq     int64           `json:"seq"`
	Feed    string          `json:"feed"`
	Payload json.RawMessage `json:"payload"`
}

// Writer queues entries and writes them from a single goroutine into
// <baseDir>/<YYYY-MM-DD>/<name>.jsonl.
type Writer struct {
	baseDir   string
	name      string
	maxSizeMB int
	now       func() time.Time

	writeCh chan Entry
	wg      sync.WaitGroup

	// closeMu orders enqueues against Close.
	closeMu sync.RWMutex
	closed  bool

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewWriter starts a writer. bufferSize bounds the queue; entries beyond it
// are dropped.
func NewWriter(baseDir, name string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	w := &Writer{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan Entry, bufferSize),
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues e without blocking.
func (w *Writer) Write(e Entry) error {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return fmt.Errorf("journal: writer is closed")
	}
	select {
	case w.writeCh <- e:
		return nil
	default:
		slog.Warn("journal buffer full, dropping entry", "name", w.name, "seq", e.Seq)
		return fmt.Errorf("journal: buffer full")
	}
}

// Follow writes every event published on broker until the returned stop
// function is called.
func (w *Writer) Follow(broker *relay.Broker) (stop func()) {
	id, events := broker.Subscribe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for evt := range events {
			_ = w.Write(Entry{Time: w.now().UTC(), Seq: evt.Seq, Feed: evt.Feed, Payload: json.RawMessage(evt.Payload)})
		}
	}()
	return func() {
		broker.Unsubscribe(id)
		<-finished
	}
}

// Close flushes queued entries and closes the current file. Entries written
// before Close returns are either flushed or rejected with an error.
func (w *Writer) Close() error {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return nil
	}
	w.closed = true
	close(w.writeCh)
	w.closeMu.Unlock()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for e := range w.writeCh {
		w.writeEntry(e)
	}
}

func (w *Writer) writeEntry(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("journal marshal failed", "error", err, "name", w.name)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "error", err, "name", w.name)
			return
		}
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "name", w.name)
	}
}

func (w *Writer) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, w.name+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
	}
	w.currentDate = date
	slog.Info("journal file opened", "file", filename)
	return nil
}
