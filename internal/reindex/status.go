package reindex

import (
	"sync"
	"time"
)

// State is the rebuild job lifecycle state.
type State string

const (
	// StateIdle indicates no rebuild has run yet.
	StateIdle State = "Idle"
	// StateRunning indicates a rebuild is in progress.
	StateRunning State = "Running"
	// StateSucceeded indicates the last rebuild completed and swapped in.
	StateSucceeded State = "Succeeded"
	// StateFailed indicates the last rebuild failed; the previous
	// generation keeps serving.
	StateFailed State = "Failed"
)

// Snapshot is an immutable view of the rebuild job record.
type Snapshot struct {
	State            State      `json:"status"`
	Generation       string     `json:"generation,omitempty"`
	DocumentsIndexed int        `json:"documents_count"`
	EntriesSkipped   int        `json:"entries_skipped"`
	SourcePath       string     `json:"source_path,omitempty"`
	SourceHash       string     `json:"source_hash,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// jobRecord tracks rebuild progress. Readers take a snapshot and never
// block on an in-progress rebuild.
type jobRecord struct {
	mu sync.RWMutex

	state      State
	generation string
	indexed    int
	skipped    int
	sourcePath string
	sourceHash string
	startedAt  time.Time
	finishedAt time.Time
	errMessage string
}

func newJobRecord() *jobRecord {
	return &jobRecord{state: StateIdle}
}

func (j *jobRecord) start(sourcePath string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state = StateRunning
	j.generation = ""
	j.indexed = 0
	j.skipped = 0
	j.sourcePath = sourcePath
	j.startedAt = time.Now()
	j.finishedAt = time.Time{}
	j.errMessage = ""
}

func (j *jobRecord) progress(indexed, skipped int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.indexed = indexed
	j.skipped = skipped
}

func (j *jobRecord) succeed(generation, sourceHash string, indexed, skipped int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state = StateSucceeded
	j.generation = generation
	j.sourceHash = sourceHash
	j.indexed = indexed
	j.skipped = skipped
	j.finishedAt = time.Now()
}

func (j *jobRecord) fail(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state = StateFailed
	j.errMessage = message
	j.finishedAt = time.Now()
}

func (j *jobRecord) lastSourceHash() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.sourceHash
}

// snapshot returns a copy of the record safe to serialize.
func (j *jobRecord) snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Snapshot{
		State:            j.state,
		Generation:       j.generation,
		DocumentsIndexed: j.indexed,
		EntriesSkipped:   j.skipped,
		SourcePath:       j.sourcePath,
		SourceHash:       j.sourceHash,
		Error:            j.errMessage,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}
