package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("vt", reg, nil)

	bs := 0.8
	c.RecordAttempt(Attempt{Decision: "VERIFIED", Reason: "ok", SpeakerScore: 0.7, SpoofProb: 0.9, ReplayProb: 0.1, BehaviorScore: &bs, Seconds: 0.05})
	c.RecordAttempt(Attempt{Decision: "DENIED", Reason: "low", SpeakerScore: 0.1, Seconds: 0.02})
	c.RecordAttempt(Attempt{Decision: "VERIFIED", Reason: "ok", SpeakerScore: 0.8, Seconds: 0.03})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("VERIFIED", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("DENIED", "low")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.decisionsTotal))

	n, err := testutil.GatherAndCount(reg, "vt_behavior_score")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordProfileUpdate(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("vt", reg, nil)
	c.RecordProfileUpdate("updated")
	c.RecordProfileUpdate("retry attempt")
	c.RecordProfileUpdate("updated")

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP vt_profile_updates_total Behavior profile update gate results
# TYPE vt_profile_updates_total counter
vt_profile_updates_total{result="retry attempt"} 1
vt_profile_updates_total{result="updated"} 2
`), "vt_profile_updates_total")
	require.NoError(t, err)
}

func TestRecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("vt", reg, nil)
	c.RecordError("embed")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verificationErrors.WithLabelValues("embed")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordAttempt(Attempt{Decision: "DENIED"})
	c.RecordProfileUpdate("updated")
	c.RecordError("embed")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("vt", reg, nil)
	assert.Panics(t, func() { NewCollector("vt", reg, nil) })
}
