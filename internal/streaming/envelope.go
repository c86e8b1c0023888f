// Package streaming implements C2: a reifiable wrapper over a lazy chunk
// sequence, with an accumulating content buffer, callback fan-out, and a
// finalizer that drains remaining chunks into a completed Response.
package streaming

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/crewkit/engine/pkg/models"
)

// Chunk is one incremental piece of provider output.
type Chunk struct {
	Content string
	Done    bool
}

// Source yields chunks one at a time. It returns (Chunk{}, false, nil)
// when exhausted; a non-nil error aborts the stream.
type Source interface {
	Next() (Chunk, bool, error)
}

// ChunkFunc adapts a plain function to Source.
type ChunkFunc func() (Chunk, bool, error)

// Next implements Source.
func (f ChunkFunc) Next() (Chunk, bool, error) { return f() }

// Callback is invoked with each chunk and the accumulated content so far.
type Callback func(chunk Chunk, contentSoFar string)

// Stats describes the envelope's state at a point in time.
type Stats struct {
	ContentLength  int
	ChunkCount     int
	ElapsedSeconds float64
}

// DefaultBufferSize is the character count, per the specification, at
// which the buffer-processing hook fires.
const DefaultBufferSize = 10

// Envelope wraps a Source with accumulation, buffering, and a single
// finalizer. It is single-consumer: only one goroutine may pull from it.
type Envelope struct {
	source     Source
	callback   Callback
	bufferSize int
	onBuffer   func(chunk string)

	agentRole string

	content     strings.Builder
	chunkCount  int
	pending     int // characters accumulated since the last buffer-hook call
	isComplete  bool
	err         error
	toolResults map[string]any

	startedAt time.Time
	endedAt   time.Time
}

// New wraps source for agentRole, with an optional fan-out callback. The
// start time is captured immediately, per the specification.
func New(source Source, agentRole string, callback Callback) *Envelope {
	return &Envelope{
		source:     source,
		agentRole:  agentRole,
		callback:   callback,
		bufferSize: DefaultBufferSize,
		startedAt:  time.Now(),
	}
}

// SetBufferSize overrides the default buffer-processing-hook threshold.
func (e *Envelope) SetBufferSize(n int) { e.bufferSize = n }

// OnBuffer registers the periodic buffer-processing hook, called each
// time at least bufferSize characters have accumulated since the last
// call. fn receives the chunk that reached the threshold, not the whole
// text accumulated since the last call. Intended for future
// cache-writeback implementations.
func (e *Envelope) OnBuffer(fn func(chunk string)) { e.onBuffer = fn }

// IsComplete reports whether the stream has been fully drained.
func (e *Envelope) IsComplete() bool { return e.isComplete }

// SetToolResults attaches the tool-execution results gathered before
// streaming began, so ToResponse carries them the same way the
// non-streaming path's Response does.
func (e *Envelope) SetToolResults(results map[string]any) { e.toolResults = results }

// Content returns the content accumulated so far (possibly partial).
func (e *Envelope) Content() string { return e.content.String() }

// Next pulls and accumulates a single chunk, invoking the callback and
// buffer hook as needed. It returns (chunk, false, nil) once drained.
func (e *Envelope) Next() (Chunk, bool, error) {
	if e.isComplete {
		return Chunk{}, false, nil
	}
	chunk, ok, err := e.source.Next()
	if err != nil {
		e.err = err
		e.finish()
		return Chunk{}, false, err
	}
	if !ok || chunk.Done {
		e.finish()
		return Chunk{}, false, nil
	}

	e.content.WriteString(chunk.Content)
	e.chunkCount++
	e.pending += utf8.RuneCountInString(chunk.Content)

	if e.callback != nil {
		e.callback(chunk, e.content.String())
	}
	if e.onBuffer != nil && e.pending >= e.bufferSize {
		e.onBuffer(chunk.Content)
		e.pending = 0
	}
	return chunk, true, nil
}

func (e *Envelope) finish() {
	if e.isComplete {
		return
	}
	e.isComplete = true
	e.endedAt = time.Now()
}

// Stats reports the envelope's current counters.
func (e *Envelope) Stats() Stats {
	end := e.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return Stats{
		ContentLength:  e.content.Len(),
		ChunkCount:     e.chunkCount,
		ElapsedSeconds: end.Sub(e.startedAt).Seconds(),
	}
}

// ToResponse drains any remaining chunks and returns the completed
// Response. Errors encountered while draining surface as the returned
// error; the content field reflects whatever was accumulated before the
// failure (a truncated response), per the specification.
func (e *Envelope) ToResponse() (*models.Response, error) {
	for !e.isComplete {
		if _, ok, err := e.Next(); err != nil {
			return &models.Response{
				Content:       e.content.String(),
				AgentRole:     e.agentRole,
				ToolResults:   e.toolResults,
				ExecutionTime: e.Stats().ElapsedSeconds,
			}, err
		} else if !ok {
			break
		}
	}
	return &models.Response{
		Content:       e.content.String(),
		AgentRole:     e.agentRole,
		ToolResults:   e.toolResults,
		ExecutionTime: e.Stats().ElapsedSeconds,
	}, nil
}

// FromSlice builds a Source over a fixed slice of strings, useful for
// tests and for providers without native streaming (a single whole-
// response chunk).
func FromSlice(chunks []string) Source {
	i := 0
	return ChunkFunc(func() (Chunk, bool, error) {
		if i >= len(chunks) {
			return Chunk{}, false, nil
		}
		c := Chunk{Content: chunks[i]}
		i++
		return c, true, nil
	})
}
