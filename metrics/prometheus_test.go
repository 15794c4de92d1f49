package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(EventChallenge, map[string]string{"network": "hedera-testnet", "reason": "missing_header"})
	rec.IncCounter(EventChallenge, map[string]string{"network": "hedera-testnet", "reason": "missing_header"})
	rec.ObserveLatency(EventVerify, 150*time.Millisecond, map[string]string{"network": "hedera-testnet"})

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.Counter(EventChallenge, "hedera-testnet", "missing_header")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncCounter(EventSettle, nil)
	r.ObserveLatency(EventSettle, time.Second, nil)
}
