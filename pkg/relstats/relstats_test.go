package relstats_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/datawire/relxfer/pkg/relstats"
)

func TestLossRate(t *testing.T) {
	assert.InDelta(t, 0.0, relstats.LossRate(1000, 1000), 1e-9)
	assert.InDelta(t, 0.1, relstats.LossRate(1000, 900), 1e-9)
	assert.InDelta(t, 0.0, relstats.LossRate(0, 0), 1e-9)
	assert.InDelta(t, 0.0, relstats.LossRate(1000, 1200), 1e-9)
}

func TestCountersCollect(t *testing.T) {
	c := &relstats.Counters{Role: "receiver"}
	c.DuplicatePackets = 3
	c.OutOfOrderPackets = 7
	assert.Equal(t, 1, testutil.CollectAndCount(c, "relxfer_duplicate_packets_total"))
	assert.Contains(t, c.String(), "receiver:")
}
