package cache

import (
	"context"
	"testing"

	"iot-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreKeepsHistorySorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, ts := range []string{"2025-01-15T10:10:00", "2025-01-15T10:00:00", "2025-01-15T10:05:00"} {
		require.NoError(t, s.Record(ctx, "LAB-PC-01", models.Reading{Current: 1, Timestamp: ts}, models.StateNormal))
	}

	got, err := s.LastN(ctx, "LAB-PC-01", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2025-01-15T10:00:00", got[0].Timestamp)
	assert.Equal(t, "2025-01-15T10:10:00", got[2].Timestamp)

	current, err := s.Current(ctx, []string{"LAB-PC-01"})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15T10:05:00", current["LAB-PC-01"].Timestamp, "current is the last write")
}

func TestMemoryStoreMatchesRedisSemantics(t *testing.T) {
	s := NewMemoryStore()
	seedHistory(t, s)
	ctx := context.Background()

	got, err := s.Range(ctx, "LAB-PC-01", "2025-01-15T10:05:00", "2025-01-15T10:10:00")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Range(ctx, "LAB-PC-01", "2025-01-15T10:10:00", "2025-01-15T10:05:00")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ByState(ctx, "LAB-PC-01", models.StateOverload)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.LastN(ctx, "LAB-PC-01", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreRecordReplacesSameTimestamp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	reading := models.Reading{Current: 12, Timestamp: "2025-01-15T10:00:00"}
	require.NoError(t, s.Record(ctx, "LAB-PC-01", reading, models.StateOverload))
	reading.Current = 1
	require.NoError(t, s.Record(ctx, "LAB-PC-01", reading, models.StateNormal))

	got, err := s.LastN(ctx, "LAB-PC-01", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StateNormal, got[0].State)
}
