package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSeparatesSeverities(t *testing.T) {
	var l List
	l.Warnf("W1", "steps[0]", "s1", "unknown device %q", "lamp")
	assert.False(t, l.HasErrors())
	assert.NoError(t, l.Err())

	l.Errorf("E1", "steps[1].config.device_id", "s2", "missing 'device_id' field")
	assert.True(t, l.HasErrors())
	assert.Equal(t, []string{"W1", "E1"}, l.Codes())
	assert.Len(t, l.Errors(), 1)
	assert.Len(t, l.Warnings(), 1)

	err := l.Err()
	require.Error(t, err)
	var d Diagnostic
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "steps[1].config.device_id", d.Field)
	assert.Equal(t, "[E1] steps[1].config.device_id (s2): missing 'device_id' field", d.Error())
}

func TestListString(t *testing.T) {
	var l List
	l.Errorf("E1", "name", "", "missing 'name' field")
	assert.Equal(t, "error [E1] name: missing 'name' field\n", l.String())
}
