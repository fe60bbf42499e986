// Package audit records the anomalies the orchestration core deliberately
// absorbs instead of failing on: rejected webhooks, events arriving after
// a transaction reached a terminal state, and provider reports that
// contradict stored facts. Entries are kept for operator review and
// summarized into periodic reports.
package audit

import (
	"log"
	"sync"
	"time"
)

// Kind classifies an audit entry.
type Kind string

const (
	KindWebhookRejected  Kind = "WEBHOOK_REJECTED"
	KindDuplicateEvent   Kind = "DUPLICATE_EVENT"
	KindTerminalIgnored  Kind = "TERMINAL_IGNORED"
	KindInconsistent     Kind = "INCONSISTENT_REPORT"
	KindUnknownReference Kind = "UNKNOWN_REFERENCE"
)

// Entry is a single recorded anomaly.
type Entry struct {
	Timestamp     time.Time
	Kind          Kind
	Provider      string
	TransactionID string
	EventID       string
	Detail        string
}

// Log is a bounded, thread-safe in-memory audit log.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewLog creates an audit log retaining at most limit entries; older
// entries are discarded first. A non-positive limit defaults to 10000.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = 10000
	}
	return &Log{limit: limit}
}

// Record appends an entry, stamping it with the current time.
func (l *Log) Record(e Entry) {
	e.Timestamp = time.Now().UTC()
	log.Printf("audit: %s provider=%s txn=%s event=%s: %s", e.Kind, e.Provider, e.TransactionID, e.EventID, e.Detail)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// Entries returns a copy of the recorded entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Report summarizes audit activity over the retained entries.
type Report struct {
	Total      int
	ByKind     map[Kind]int
	ByProvider map[string]int
	DateFrom   time.Time
	DateTo     time.Time
}

// Summarize builds a Report from the retained entries.
func (l *Log) Summarize() Report {
	entries := l.Entries()
	report := Report{
		ByKind:     make(map[Kind]int),
		ByProvider: make(map[string]int),
	}
	for i, e := range entries {
		report.Total++
		report.ByKind[e.Kind]++
		if e.Provider != "" {
			report.ByProvider[e.Provider]++
		}
		if i == 0 || e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}
	}
	return report
}
