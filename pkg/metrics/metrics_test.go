package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerObserveDurationVec(t *testing.T) {
	before := testutil.CollectAndCount(RPCCallDuration)

	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDurationVec(RPCCallDuration, "Create")

	after := testutil.CollectAndCount(RPCCallDuration)
	assert.Equal(t, before+1, after)
}

func TestTimerDurationIsMonotonic(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Duration(), time.Duration(0))
}
