package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/agent-orchestrator/graph/emit"
)

// Callback receives every event that passes the priority filter, synchronously
// and before batching, mirroring orchestrator/events/emitter.py's
// add_callback (used there to let a websocket progress handler see events
// without going through the database).
type Callback func(Event)

// CallbackHandle identifies a registered Callback for later removal. Go func
// values aren't comparable, so RemoveCallback takes a handle rather than the
// function itself.
type CallbackHandle int

// Option configures an Emitter.
type Option func(*Emitter)

func WithBatchSize(n int) Option {
	return func(e *Emitter) { e.batchSize = n }
}

func WithFlushInterval(d time.Duration) Option {
	return func(e *Emitter) { e.flushInterval = d }
}

func WithMinPriority(p Priority) Option {
	return func(e *Emitter) { e.minPriority = p }
}

func WithEnabled(enabled bool) Option {
	return func(e *Emitter) { e.enabled = enabled }
}

// Emitter batches, filters, and forwards workflow Events to a sink emitter,
// grounded on orchestrator/events/emitter.py's EventEmitter with the
// SurrealDB write swapped for the teacher's graph/emit.Emitter interface
// (the dashboard project_name/table coupling has no equivalent here; any
// backend - log, otel, a future repository-backed sink - is reached through
// that same interface).
type Emitter struct {
	sink           emit.Emitter
	projectName    string
	runCorrelation string

	batchSize     int
	flushInterval time.Duration
	enabled       bool
	minPriority   Priority

	mu    sync.Mutex
	batch []Event
	timer *time.Timer

	cbMu      sync.Mutex
	callbacks map[CallbackHandle]Callback
	nextCB    CallbackHandle

	emitted int64
	failed  int64
}

// Stats reports cumulative emit counts, matching the .stats property of
// orchestrator/events/emitter.py's EventEmitter.
type Stats struct {
	EventsEmitted int64
	EventsFailed  int64
	EventsPending int
}

// NewEmitter wires an Emitter in front of sink with spec.md §4.5's defaults
// (batch_size=10, flush_interval=1s, min_priority=LOW, enabled=true).
func NewEmitter(sink emit.Emitter, projectName string, opts ...Option) *Emitter {
	e := &Emitter{
		sink:           sink,
		projectName:    projectName,
		runCorrelation: uuid.NewString(),
		batchSize:      10,
		flushInterval:  time.Second,
		enabled:        true,
		minPriority:    Low,
		callbacks:      map[CallbackHandle]Callback{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddCallback registers cb to run synchronously on every event that passes
// the priority filter, returning a handle for RemoveCallback.
func (e *Emitter) AddCallback(cb Callback) CallbackHandle {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	h := e.nextCB
	e.nextCB++
	e.callbacks[h] = cb
	return h
}

// RemoveCallback unregisters a callback previously returned by AddCallback.
func (e *Emitter) RemoveCallback(h CallbackHandle) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	delete(e.callbacks, h)
}

func (e *Emitter) runCallbacks(ev Event) {
	e.cbMu.Lock()
	cbs := make([]Callback, 0, len(e.callbacks))
	for _, cb := range e.callbacks {
		cbs = append(cbs, cb)
	}
	e.cbMu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// Emit queues ev for batched delivery, flushing immediately once the batch
// reaches batchSize and otherwise arming a flushInterval timer, matching
// orchestrator/events/emitter.py's emit().
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if !e.enabled {
		return nil
	}
	if rank(ev.Priority) > rank(e.minPriority) {
		return nil
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.ProjectName == "" {
		ev.ProjectName = e.projectName
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = e.runCorrelation
	}

	e.runCallbacks(ev)

	e.mu.Lock()
	e.batch = append(e.batch, ev)
	if len(e.batch) >= e.batchSize {
		pending := e.batch
		e.batch = nil
		e.stopTimerLocked()
		e.mu.Unlock()
		return e.writeBatch(ctx, pending)
	}
	if e.timer == nil {
		e.timer = time.AfterFunc(e.flushInterval, e.onTimer)
	}
	e.mu.Unlock()
	return nil
}

// EmitNow writes ev directly to the sink, bypassing the batch, for
// high-priority events that need instant delivery (escalations, workflow
// pause/resume). It still runs callbacks and the priority filter is not
// applied, matching orchestrator/events/emitter.py's emit_now.
func (e *Emitter) EmitNow(ctx context.Context, ev Event) error {
	if !e.enabled {
		return nil
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.ProjectName == "" {
		ev.ProjectName = e.projectName
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = e.runCorrelation
	}
	e.runCallbacks(ev)
	return e.writeBatch(ctx, []Event{ev})
}

func (e *Emitter) onTimer() {
	e.mu.Lock()
	pending := e.batch
	e.batch = nil
	e.timer = nil
	e.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	_ = e.writeBatch(context.Background(), pending)
}

func (e *Emitter) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Emitter) writeBatch(ctx context.Context, pending []Event) error {
	converted := make([]emit.Event, 0, len(pending))
	for _, ev := range pending {
		converted = append(converted, toGraphEvent(ev))
	}
	err := e.sink.EmitBatch(ctx, converted)
	if err != nil {
		atomicAdd(&e.failed, int64(len(pending)))
		return err
	}
	atomicAdd(&e.emitted, int64(len(pending)))
	return nil
}

// Flush writes any pending batched events immediately.
func (e *Emitter) Flush(ctx context.Context) error {
	e.mu.Lock()
	pending := e.batch
	e.batch = nil
	e.stopTimerLocked()
	e.mu.Unlock()
	if len(pending) == 0 {
		return e.sink.Flush(ctx)
	}
	if err := e.writeBatch(ctx, pending); err != nil {
		return err
	}
	return e.sink.Flush(ctx)
}

// Close stops the flush timer and flushes any remaining events.
func (e *Emitter) Close(ctx context.Context) error {
	return e.Flush(ctx)
}

// Stats reports cumulative emit/fail counts and the current pending size.
func (e *Emitter) Stats() Stats {
	e.mu.Lock()
	pending := len(e.batch)
	e.mu.Unlock()
	return Stats{
		EventsEmitted: atomicLoad(&e.emitted),
		EventsFailed:  atomicLoad(&e.failed),
		EventsPending: pending,
	}
}

func toGraphEvent(ev Event) emit.Event {
	meta := map[string]interface{}{
		"event_type":     string(ev.EventType),
		"project_name":   ev.ProjectName,
		"timestamp":      ev.Timestamp,
		"priority":       string(ev.Priority),
		"task_id":        ev.TaskID,
		"correlation_id": ev.CorrelationID,
	}
	if ev.HasPhase {
		meta["phase"] = ev.Phase
	}
	for k, v := range ev.Data {
		meta[k] = v
	}
	return emit.Event{
		RunID:  ev.ProjectName,
		NodeID: ev.NodeName,
		Msg:    string(ev.EventType),
		Meta:   meta,
	}
}
