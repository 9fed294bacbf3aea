package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, Event{TaskID: "t1", Kind: "start", PID: 123, OccurredAt: time.Now().UTC()}))
	require.NoError(t, sink.Record(ctx, Event{TaskID: "t1", Kind: "stop", OccurredAt: time.Now().UTC()}))
	require.NoError(t, sink.Record(ctx, Event{TaskID: "t2", Kind: "start", PID: 456, OccurredAt: time.Now().UTC()}))

	events, err := sink.Recent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "stop", events[0].Kind)
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	sink1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, sink1.Close())

	sink2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = sink2.Close() }()
}
