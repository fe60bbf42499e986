package audit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndEntries(t *testing.T) {
	l := NewLog(100)
	l.Record(Entry{Kind: KindWebhookRejected, Provider: "paystack", EventID: "evt-1", Detail: "bad signature"})
	l.Record(Entry{Kind: KindTerminalIgnored, Provider: "xendit", TransactionID: "txn-1"})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, KindWebhookRejected, entries[0].Kind)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, "txn-1", entries[1].TransactionID)
}

func TestLimitDiscardsOldest(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Record(Entry{Kind: KindDuplicateEvent, EventID: fmt.Sprintf("evt-%d", i)})
	}
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "evt-2", entries[0].EventID)
	assert.Equal(t, "evt-4", entries[2].EventID)
}

func TestSummarize(t *testing.T) {
	l := NewLog(100)
	l.Record(Entry{Kind: KindWebhookRejected, Provider: "paystack"})
	l.Record(Entry{Kind: KindWebhookRejected, Provider: "paystack"})
	l.Record(Entry{Kind: KindInconsistent, Provider: "xendit"})

	report := l.Summarize()
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.ByKind[KindWebhookRejected])
	assert.Equal(t, 1, report.ByKind[KindInconsistent])
	assert.Equal(t, 2, report.ByProvider["paystack"])
	assert.False(t, report.DateFrom.After(report.DateTo))
}

func TestSummarizeEmpty(t *testing.T) {
	report := NewLog(0).Summarize()
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.ByKind)
}
