package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer(t *testing.T) {
	timer := NewNamedTimer("barcodes")
	assert.Equal(t, "barcodes", timer.Name())

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	assert.Equal(t, duration, timer.Duration())

	str := timer.String()
	assert.Contains(t, str, "barcodes: ")
	assert.Contains(t, str, "ms")
}

func TestTimer_StopNs(t *testing.T) {
	timer := NewTimer()
	ns := timer.StopNs()
	assert.GreaterOrEqual(t, ns, int64(0))
	assert.GreaterOrEqual(t, timer.StopNs(), ns)
	assert.Empty(t, timer.Name())
	assert.NotContains(t, timer.String(), ":")
}
