// Package journal is an append-only NDJSON audit trail with size-based
// rotation and age-based retention. Writes are asynchronous and must
// never fail into the caller's path; a write that cannot reach disk is
// reported on the fallback diagnostic logger and dropped.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	activeName    = "audit.ndjson"
	rotatedPrefix = "audit-"
	rotatedSuffix = ".ndjson"
	stampLayout   = "20060102T150405"
)

// Config controls journal buffering, rotation and retention.
type Config struct {
	Dir            string
	BufferSize     int
	FlushThreshold int
	MaxFileBytes   int64
	RetentionDays  int
	DropIfFull     bool
}

// Journal buffers audit events and appends them to the active file,
// rotating it once it crosses the size threshold. Safe for concurrent
// use.
type Journal struct {
	cfg  Config
	log  zerolog.Logger
	ch   chan Event
	sync chan chan struct{}
	done chan struct{}

	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.Mutex // guards file operations against Query
	written atomic.Uint64
}

// Open creates the journal directory if needed and starts the writer.
func Open(cfg Config, log zerolog.Logger) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 16
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 5 << 20
	}

	j := &Journal{
		cfg:  cfg,
		log:  log.With().Str("component", "journal").Logger(),
		ch:   make(chan Event, cfg.BufferSize),
		sync: make(chan chan struct{}),
		done: make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j, nil
}

// Log queues an event. It assigns EventID and Timestamp when unset and
// never blocks past the buffer when DropIfFull is set.
func (j *Journal) Log(ctx context.Context, e Event) {
	if j == nil || j.closed.Load() {
		return
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	if j.cfg.DropIfFull {
		select {
		case j.ch <- e:
		case <-j.done:
		default:
			j.dropped.Add(1)
		}
		return
	}
	select {
	case j.ch <- e:
	case <-ctx.Done():
		j.dropped.Add(1)
	case <-j.done:
	}
}

// Flush drains the queue and the pending buffer to disk before
// returning.
func (j *Journal) Flush() {
	if j == nil || j.closed.Load() {
		return
	}
	ack := make(chan struct{})
	select {
	case j.sync <- ack:
		<-ack
	case <-j.done:
	}
}

// Close flushes everything and stops the writer. Events logged after
// Close are discarded.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.closeOnce.Do(func() {
		j.closed.Store(true)
		close(j.done)
		j.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer
// was full.
func (j *Journal) Dropped() uint64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Written reports how many events reached disk.
func (j *Journal) Written() uint64 {
	if j == nil {
		return 0
	}
	return j.written.Load()
}

func (j *Journal) run() {
	defer j.wg.Done()
	var pending []Event
	for {
		select {
		case e := <-j.ch:
			pending = append(pending, e)
			if len(pending) >= j.cfg.FlushThreshold {
				pending = j.flush(pending)
			}
		case ack := <-j.sync:
			pending = j.flush(append(pending, drain(j.ch)...))
			close(ack)
		case <-j.done:
			j.flush(append(pending, drain(j.ch)...))
			return
		}
	}
}

func drain(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

// flush rotates if the active file is oversized, then appends every
// pending event. Returns the slice to reuse; events that fail to
// serialize or write are reported and dropped.
func (j *Journal) flush(pending []Event) []Event {
	if len(pending) == 0 {
		return pending[:0]
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.rotateIfNeeded()

	f, err := os.OpenFile(j.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		j.log.Error().Err(err).Int("events", len(pending)).Msg("audit flush failed, events dropped")
		j.dropped.Add(uint64(len(pending)))
		return pending[:0]
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range pending {
		line, err := json.Marshal(e)
		if err != nil {
			j.log.Error().Err(err).Str("event_type", e.EventType).Msg("audit event not serializable")
			j.dropped.Add(1)
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			j.log.Error().Err(err).Msg("audit write failed")
			j.dropped.Add(1)
			continue
		}
		j.written.Add(1)
	}
	if err := w.Flush(); err != nil {
		j.log.Error().Err(err).Msg("audit flush failed")
	}
	return pending[:0]
}

func (j *Journal) activePath() string {
	return filepath.Join(j.cfg.Dir, activeName)
}

func (j *Journal) rotateIfNeeded() {
	info, err := os.Stat(j.activePath())
	if err != nil || info.Size() < j.cfg.MaxFileBytes {
		return
	}
	rotated := filepath.Join(j.cfg.Dir,
		rotatedPrefix+time.Now().UTC().Format(stampLayout)+rotatedSuffix)
	if err := os.Rename(j.activePath(), rotated); err != nil {
		j.log.Error().Err(err).Msg("audit rotation failed")
		return
	}
	j.purgeExpired()
}

// purgeExpired deletes rotated files older than the retention window.
// The active file is never deleted.
func (j *Journal) purgeExpired() {
	if j.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.RetentionDays)
	for _, name := range j.rotatedFiles() {
		stamp, ok := rotatedStamp(name)
		if !ok || !stamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.cfg.Dir, name)); err != nil {
			j.log.Warn().Err(err).Str("file", name).Msg("audit retention purge failed")
		}
	}
}

// rotatedFiles returns rotated file names sorted newest first.
func (j *Journal) rotatedFiles() []string {
	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if _, ok := rotatedStamp(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

func rotatedStamp(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, rotatedPrefix) || !strings.HasSuffix(name, rotatedSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, rotatedPrefix), rotatedSuffix)
	t, err := time.Parse(stampLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Query scans the journal newest-first and returns at most limit
// events matching the filter. Call Flush first to observe events still
// buffered in memory.
func (j *Journal) Query(ctx context.Context, f Filter, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	files := append([]string{activeName}, j.rotatedFiles()...)
	var out []Event
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := scanFile(filepath.Join(j.cfg.Dir, name), f)
		if err != nil {
			return nil, err
		}
		// Lines are appended oldest-first; reverse for newest-first.
		for i := len(matches) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, matches[i])
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func scanFile(path string, f Filter) ([]Event, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer file.Close()

	var matches []Event
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn final line from a crash is skipped, not fatal.
			continue
		}
		if f.matches(e) {
			matches = append(matches, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return matches, nil
}
