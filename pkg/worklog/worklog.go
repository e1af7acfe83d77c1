// Package worklog implements the per-assignment append-only work event log.
// Events are durable JSONL on disk, one file per (ancillary, bead), with a
// hot in-memory tail for cheap reads and a fan-out layer for live
// subscribers. Seq is strictly increasing and gap-free within one log,
// starting at 0; there is a single writer per log.
package worklog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"loom/pkg/protocol"
)

const (
	// tailSize is how many recent events stay in memory.
	tailSize = 1000

	// subscriberBuffer is the live-event headroom per subscriber. A
	// subscriber that falls this far behind is terminated; replay covers
	// the gap when it reconnects.
	subscriberBuffer = 256

	// maxReadBatch bounds one ReadFrom call.
	maxReadBatch = 1000
)

// Log is one assignment's work event log.
type Log struct {
	ancillaryID string
	beadID      string
	path        string

	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	nextSeq  uint64
	tail     []protocol.WorkEvent
	subs     map[int]*subscriber
	nextSub  int
	closed   bool
	observer func(protocol.WorkEvent)

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

type subscriber struct {
	id     int
	frames chan protocol.StreamFrame
}

// Subscription is a live view over a Log. Frames arrives in log order:
// replayed events, one replay_complete, then live events. The channel is
// closed when the log closes or the subscriber falls too far behind; in the
// latter case the final frame is an error frame.
type Subscription struct {
	Frames <-chan protocol.StreamFrame

	log *Log
	id  int
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	if sub, ok := s.log.subs[s.id]; ok {
		delete(s.log.subs, s.id)
		close(sub.frames)
	}
}

// Open creates or reopens the log for one assignment at
// {root}/{ancillary-slug}/work/{beadID}.jsonl. Reopening an existing file
// (resume) continues the seq sequence from where it left off.
func Open(root, ancillaryID, beadID string) (*Log, error) {
	dir := filepath.Join(root, protocol.AncillarySlug(ancillaryID), protocol.WorkDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	path := filepath.Join(dir, beadID+".jsonl")

	l := &Log{
		ancillaryID: ancillaryID,
		beadID:      beadID,
		path:        path,
		subs:        make(map[int]*subscriber),
		nowFunc:     time.Now,
	}
	if err := l.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // path is under the loom home
	if err != nil {
		return nil, fmt.Errorf("opening work log: %w", err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	return l, nil
}

// recover scans an existing file to restore nextSeq and the tail.
func (l *Log) recover() error {
	f, err := os.Open(l.path) //nolint:gosec // path is under the loom home
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening work log for recovery: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev protocol.WorkEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("corrupt work log line at seq %d: %w", l.nextSeq, err)
		}
		if ev.Seq != l.nextSeq {
			return fmt.Errorf("work log seq gap: got %d, want %d", ev.Seq, l.nextSeq)
		}
		l.nextSeq++
		l.tail = append(l.tail, ev)
		if len(l.tail) > tailSize {
			l.tail = l.tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning work log: %w", err)
	}
	return nil
}

// SetObserver registers a callback invoked after every durable append,
// for instrumentation. It must not call back into the log.
func (l *Log) SetObserver(fn func(protocol.WorkEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = fn
}

// Path returns the on-disk location of the log file.
func (l *Log) Path() string { return l.path }

// NextSeq returns the seq the next appended event will carry.
func (l *Log) NextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}

// Append durably writes one event and fans it out to live subscribers.
// The returned event carries the assigned seq and timestamp. An error here
// is fatal to the session: the caller must fail the assignment.
func (l *Log) Append(op protocol.WorkOp) (protocol.WorkEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return protocol.WorkEvent{}, fmt.Errorf("work log for %s/%s is closed", l.ancillaryID, l.beadID)
	}

	ev := protocol.WorkEvent{
		Seq:         l.nextSeq,
		Timestamp:   l.nowFunc().UTC(),
		AncillaryID: l.ancillaryID,
		BeadID:      l.beadID,
		Op:          op,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return protocol.WorkEvent{}, fmt.Errorf("encoding work event: %w", err)
	}
	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		return protocol.WorkEvent{}, fmt.Errorf("writing work event: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return protocol.WorkEvent{}, fmt.Errorf("flushing work event: %w", err)
	}

	l.nextSeq++
	l.tail = append(l.tail, ev)
	if len(l.tail) > tailSize {
		l.tail = l.tail[1:]
	}
	l.fanOut(protocol.StreamFrame{Type: protocol.StreamEvent, Event: &ev})
	if l.observer != nil {
		l.observer(ev)
	}
	return ev, nil
}

// fanOut delivers a frame to every subscriber without blocking. A full
// subscriber channel means the client fell behind subscriberBuffer live
// events; it gets an error frame and is detached. Called with mu held.
func (l *Log) fanOut(frame protocol.StreamFrame) {
	for id, sub := range l.subs {
		// One slot past the live buffer stays reserved for the terminal
		// error frame, so overflow detection uses len/cap rather than a
		// non-blocking send.
		if len(sub.frames) < cap(sub.frames)-1 {
			sub.frames <- frame
			continue
		}
		delete(l.subs, id)
		sub.frames <- protocol.StreamFrame{
			Type:    protocol.StreamError,
			Message: "subscriber too slow, resubscribe to replay",
		}
		close(sub.frames)
	}
}

// ReadFrom returns a bounded snapshot of events with seq >= fromSeq, at most
// maxReadBatch of them, in order. Events still in the tail are served from
// memory; older ones are read back from disk.
func (l *Log) ReadFrom(fromSeq uint64) ([]protocol.WorkEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evs, err := l.readFromLocked(fromSeq)
	if err != nil {
		return nil, err
	}
	if len(evs) > maxReadBatch {
		evs = evs[:maxReadBatch]
	}
	return evs, nil
}

func (l *Log) readFromLocked(fromSeq uint64) ([]protocol.WorkEvent, error) {
	var tailStart uint64
	if len(l.tail) > 0 {
		tailStart = l.tail[0].Seq
	}
	if fromSeq >= tailStart || len(l.tail) == int(l.nextSeq) { //nolint:gosec // nextSeq is bounded by log length
		out := make([]protocol.WorkEvent, 0, len(l.tail))
		for _, ev := range l.tail {
			if ev.Seq >= fromSeq {
				out = append(out, ev)
			}
		}
		return out, nil
	}

	// Cold read: the requested range predates the in-memory tail.
	f, err := os.Open(l.path) //nolint:gosec // path is under the loom home
	if err != nil {
		return nil, fmt.Errorf("opening work log for read: %w", err)
	}
	defer func() { _ = f.Close() }()
	var out []protocol.WorkEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev protocol.WorkEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("corrupt work log line: %w", err)
		}
		if ev.Seq >= fromSeq {
			out = append(out, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning work log: %w", err)
	}
	return out, nil
}

// Subscribe returns a replay-then-tail subscription: every event with
// seq >= fromSeq that exists at subscribe time, in order, then a
// replay_complete frame carrying the last assigned seq, then live events.
// No duplicates, no omissions. Slow subscribers never block the writer or
// each other; one that overflows its buffer is detached with an error frame.
func (l *Log) Subscribe(fromSeq uint64) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("work log for %s/%s is closed", l.ancillaryID, l.beadID)
	}

	replay, err := l.readFromLocked(fromSeq)
	if err != nil {
		return nil, err
	}

	// Replay frames are enqueued synchronously under the lock, so the
	// buffer must hold all of them plus replay_complete, plus live
	// headroom and a reserved slot for a terminal error frame.
	sub := &subscriber{
		id:     l.nextSub,
		frames: make(chan protocol.StreamFrame, len(replay)+subscriberBuffer+2),
	}
	l.nextSub++

	for i := range replay {
		sub.frames <- protocol.StreamFrame{Type: protocol.StreamEvent, Event: &replay[i]}
	}
	var current uint64
	if l.nextSeq > 0 {
		current = l.nextSeq - 1
	}
	sub.frames <- protocol.StreamFrame{Type: protocol.StreamReplayComplete, CurrentSeq: current}

	l.subs[sub.id] = sub
	return &Subscription{Frames: sub.frames, log: l, id: sub.id}, nil
}

// Close ends the log generation. Live subscribers receive a status frame
// with the reason and their channels are closed; further Append and
// Subscribe calls fail. The file stays on disk for later cold reads.
func (l *Log) Close(reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for id, sub := range l.subs {
		delete(l.subs, id)
		select {
		case sub.frames <- protocol.StreamFrame{Type: protocol.StreamStatus, Status: reason}:
		default:
		}
		close(sub.frames)
	}
	if err := l.writer.Flush(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("flushing work log on close: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing work log: %w", err)
	}
	return nil
}
