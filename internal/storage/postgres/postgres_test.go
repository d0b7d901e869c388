package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 200, clampLimit(0, 200))
	assert.Equal(t, 200, clampLimit(-5, 200))
	assert.Equal(t, 7, clampLimit(7, 200))
	assert.Equal(t, maxRows, clampLimit(maxRows*3, 200))
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "scene-1", nullString("scene-1").String)
}

// testClient connects to SENTIENT_TEST_DSN under a fresh room so runs do
// not see each other's rows.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("SENTIENT_TEST_DSN")
	if dsn == "" {
		t.Skip("SENTIENT_TEST_DSN not set")
	}
	c, err := New(dsn, "test-"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = c.DB().Exec(`DELETE FROM events WHERE room_id = $1`, c.RoomID())
		c.Close()
	})
	return c
}

func TestEventLogRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, c.Append(base, "info", "execution.received", "", map[string]interface{}{"seq": 1}, ""))
	require.NoError(t, c.Append(base.Add(time.Second), "info", "execution.received", "", map[string]interface{}{"seq": 2}, ""))
	require.NoError(t, c.Append(base.Add(2*time.Second), "info", "export.completed", "wrote 2", nil, "scene-1"))
	require.NoError(t, c.Append(base.Add(3*time.Second), "warn", "reorder.failed", "", nil, "scene-1"))

	rows, err := c.QueryEvent(ctx, "execution.received", base.Add(-time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0].Fields["seq"], "newest first")
	assert.Nil(t, rows[0].Message)
	assert.Nil(t, rows[0].SessionID)

	rows, err = c.QueryEvent(ctx, "execution.received", base.Add(-time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0].Fields["seq"], "the limit keeps the latest row")

	rows, err = c.QueryEvent(ctx, "execution.received", base.Add(500*time.Millisecond), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	history, err := c.QueryScene(ctx, "scene-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "reorder.failed", history[0].Event, "newest first")
	require.NotNil(t, history[1].Message)
	assert.Equal(t, "wrote 2", *history[1].Message)

	none, err := c.QueryScene(ctx, "scene-unknown", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
