package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogStoreWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	store := NewLogStore(slog.New(slog.NewJSONHandler(&buf, nil)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(context.Background(), Event{
		Type:       EventVotesSubmitted,
		Timestamp:  at,
		SessionID:  "s1",
		PaymentRef: "ref-1",
		Votes:      5,
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit event", line["msg"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, "votes_submitted", line["type"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "ref-1", line["payment_ref"])
	assert.EqualValues(t, 5, line["votes"])
	assert.NotContains(t, line, "nominee_id")
}

func TestInMemoryStoreKeepsMostRecent(t *testing.T) {
	store := &InMemoryStore{capacity: 2}
	for _, sid := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(context.Background(), Event{SessionID: sid}))
	}
	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].SessionID)
	assert.Equal(t, "c", events[1].SessionID)
}
