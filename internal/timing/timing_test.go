package timing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureReturnsResultAndDuration(t *testing.T) {
	d, v, err := Measure(func() (int, error) {
		time.Sleep(2 * time.Millisecond)
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
}

func TestRecorderAttributesSamples(t *testing.T) {
	r := NewRecorder()

	_, _, err := Do(r, "recall", Embedded, func() (string, error) { return "ok", nil })
	require.NoError(t, err)

	_, s, err := Do(r, "recall", Network, func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
	assert.False(t, s.Success)
	assert.Equal(t, "boom", s.Error)

	_, err = r.Time("stats", Embedded, func() error { return nil })
	require.NoError(t, err)

	assert.Len(t, r.Samples(), 3)
	assert.Len(t, r.Elapsed("recall", Embedded), 1)
	assert.Empty(t, r.Elapsed("recall", Network), "failed samples are excluded")
	assert.Equal(t, 1, r.Failures(Network))
	assert.Equal(t, 0, r.Failures(Embedded))

	r.Reset()
	assert.Empty(t, r.Samples())
}

func TestMilliseconds(t *testing.T) {
	assert.InDelta(t, 1.5, Milliseconds(1500*time.Microsecond), 1e-9)
}
