package journal_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/journal"
)

func sampleEvent(id, exec string, typ event.Type) event.Event {
	return event.Event{
		ID:          id,
		ExecutionID: exec,
		NodeID:      "n1",
		Type:        typ,
		Timestamp:   time.Now().UTC(),
	}
}

func TestMemoryStore_AppendList(t *testing.T) {
	store := journal.NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Append(sampleEvent("e1", "run-1", event.TypeNodeStart)))
	require.NoError(t, store.Append(sampleEvent("e2", "run-1", event.TypeNodeEnd)))
	require.NoError(t, store.Append(sampleEvent("e3", "run-2", event.TypeDone)))

	events, err := store.List("run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)

	other, err := store.List("run-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	empty, err := store.List("ghost")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_Closed(t *testing.T) {
	store := journal.NewMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Append(sampleEvent("e1", "r", event.TypeDone)), journal.ErrStoreClosed)
	_, err := store.List("r")
	assert.ErrorIs(t, err, journal.ErrStoreClosed)
}

func TestSQLiteStore_AppendList(t *testing.T) {
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Now().UTC()
	first := sampleEvent("e1", "run-1", event.TypeChunk)
	first.Timestamp = base
	first.Chunk = &event.ChunkPayload{Text: "hello"}

	second := sampleEvent("e2", "run-1", event.TypeDone)
	second.Timestamp = base.Add(time.Millisecond)

	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))
	require.NoError(t, store.Append(sampleEvent("e3", "run-2", event.TypeDone)))

	events, err := store.List("run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, event.TypeChunk, events[0].Type)
	require.NotNil(t, events[0].Chunk)
	assert.Equal(t, "hello", events[0].Chunk.Text)
	assert.Equal(t, "e2", events[1].ID)
}

func TestSQLiteStore_DuplicateIDIgnored(t *testing.T) {
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer store.Close()

	evt := sampleEvent("e1", "run-1", event.TypeDone)
	require.NoError(t, store.Append(evt))
	require.NoError(t, store.Append(evt))

	events, err := store.List("run-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_Closed(t *testing.T) {
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Append(sampleEvent("e1", "r", event.TypeDone)), journal.ErrStoreClosed)
}

func TestAttach_RecordsBusEvents(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	store := journal.NewMemoryStore()
	defer store.Close()

	sub := journal.Attach(bus, store, nil)
	defer sub.Unsubscribe()

	bus.Publish(sampleEvent("e1", "run-1", event.TypeNodeStart))
	bus.Publish(sampleEvent("e2", "run-1", event.TypeDone))

	require.Eventually(t, func() bool {
		events, err := store.List("run-1")
		return err == nil && len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAttach_ReportsAppendErrors(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	store := journal.NewMemoryStore()
	store.Close()

	errs := make(chan error, 1)
	sub := journal.Attach(bus, store, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	defer sub.Unsubscribe()

	bus.Publish(sampleEvent("e1", "run-1", event.TypeDone))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, journal.ErrStoreClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("append failure was not reported")
	}
}
