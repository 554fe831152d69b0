package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueries(t *testing.T) {
	var (
		newDb = func(t *testing.T) *Queries {
			var db = SetupTestDatabase(t)
			err := Migrate(db, "test_debal")
			require.NoError(t, err)
			return NewQueries(db, "test_debal")
		}
		newCtx = func() context.Context {
			return context.Background()
		}
		newEvent = func(runID uuid.UUID, eventType string, simTime time.Duration) *EventRecord {
			return &EventRecord{
				RunID:     runID,
				EventType: eventType,
				SimTime:   simTime,
				LeaderID:  "node_0",
				NodeID:    "node_2",
			}
		}
		newSample = func(runID uuid.UUID, seq int, local, remote float64) *SampleRecord {
			return &SampleRecord{
				RunID:         runID,
				NodeID:        "node_0",
				PeerID:        "node_1",
				Seq:           seq,
				SimTime:       time.Duration(seq) * time.Minute,
				LocalBalance:  local,
				RemoteBalance: remote,
			}
		}
	)

	t.Run("should insert and list events in order", func(t *testing.T) {
		// Arrange
		var (
			sut    = newDb(t)
			ctx    = newCtx()
			runID  = uuid.New()
			first  = newEvent(runID, "election_succeeded", 0)
			second = newEvent(runID, "rebalancing_succeeded", time.Minute)
		)
		second.Path = []string{"node_1", "node_2", "node_3"}
		second.Amount = 100
		second.Improvement = 0.5

		// Act
		require.NoError(t, sut.InsertEvent(ctx, first))
		require.NoError(t, sut.InsertEvent(ctx, second))
		var events, err = sut.ListEvents(ctx, runID)

		// Assert
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Less(t, first.ID, second.ID)
		assert.Equal(t, "election_succeeded", events[0].EventType)
		assert.Empty(t, events[0].Path)
		assert.Equal(t, "rebalancing_succeeded", events[1].EventType)
		assert.Equal(t, []string{"node_1", "node_2", "node_3"}, events[1].Path)
		assert.Equal(t, time.Minute, events[1].SimTime)
		assert.Equal(t, 100.0, events[1].Amount)
		assert.Equal(t, 0.5, events[1].Improvement)
		assert.Equal(t, runID, events[1].RunID)
	})

	t.Run("should isolate events by run ID", func(t *testing.T) {
		// Arrange
		var (
			sut  = newDb(t)
			ctx  = newCtx()
			runA = uuid.New()
			runB = uuid.New()
		)
		require.NoError(t, sut.InsertEvent(ctx, newEvent(runA, "election_succeeded", 0)))
		require.NoError(t, sut.InsertEvent(ctx, newEvent(runB, "election_vacant", 0)))

		// Act
		var events, err = sut.ListEvents(ctx, runA)

		// Assert
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "election_succeeded", events[0].EventType)
	})

	t.Run("should list samples ordered by sequence", func(t *testing.T) {
		// Arrange
		var (
			sut   = newDb(t)
			ctx   = newCtx()
			runID = uuid.New()
		)
		require.NoError(t, sut.InsertSample(ctx, newSample(runID, 1, 50, 50)))
		require.NoError(t, sut.InsertSample(ctx, newSample(runID, 0, 100, 0)))

		// Act
		var samples, err = sut.ListSamples(ctx, runID, "node_0", "node_1")

		// Assert
		require.NoError(t, err)
		require.Len(t, samples, 2)
		assert.Equal(t, 0, samples[0].Seq)
		assert.Equal(t, 100.0, samples[0].LocalBalance)
		assert.Equal(t, 1, samples[1].Seq)
		assert.Equal(t, time.Minute, samples[1].SimTime)
	})

	t.Run("should update existing sample on conflict", func(t *testing.T) {
		// Arrange
		var (
			sut   = newDb(t)
			ctx   = newCtx()
			runID = uuid.New()
		)
		require.NoError(t, sut.InsertSample(ctx, newSample(runID, 0, 100, 0)))

		// Act
		require.NoError(t, sut.InsertSample(ctx, newSample(runID, 0, 60, 40)))
		var samples, err = sut.ListSamples(ctx, runID, "node_0", "node_1")

		// Assert
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, 60.0, samples[0].LocalBalance)
		assert.Equal(t, 40.0, samples[0].RemoteBalance)
	})

	t.Run("should delete a run", func(t *testing.T) {
		// Arrange
		var (
			sut   = newDb(t)
			ctx   = newCtx()
			runID = uuid.New()
		)
		require.NoError(t, sut.InsertEvent(ctx, newEvent(runID, "election_succeeded", 0)))
		require.NoError(t, sut.InsertSample(ctx, newSample(runID, 0, 100, 0)))

		// Act
		err := sut.DeleteRun(ctx, runID)

		// Assert
		require.NoError(t, err)
		var events, _ = sut.ListEvents(ctx, runID)
		var samples, _ = sut.ListSamples(ctx, runID, "node_0", "node_1")
		assert.Empty(t, events)
		assert.Empty(t, samples)
	})
}
