// Package relstats collects the operator-facing counters for a single
// transfer: duplicates, out-of-order arrivals, retransmissions, and
// basic packet/ack tallies. None of these values ever feed back into
// control flow — they exist purely to be reported.
package relstats

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is a bundle of transfer statistics written only by the one
// cooperative loop that owns it; reads go through atomic loads so that
// String and Collect can run from another goroutine. It also
// doubles as a prometheus.Collector so a long-running receiver can
// expose it on /metrics without maintaining two copies of the numbers.
type Counters struct {
	Role string // "sender" or "receiver", used as a metric label

	PacketsSent       uint64
	PacketsReceived   uint64
	AcksSent          uint64
	AcksReceived      uint64
	Retransmissions   uint64
	DuplicatePackets  uint64
	OutOfOrderPackets uint64
}

func (c *Counters) String() string {
	return fmt.Sprintf(
		"%s: sent=%d received=%d acksSent=%d acksReceived=%d retransmissions=%d duplicates=%d outOfOrder=%d",
		c.Role, atomic.LoadUint64(&c.PacketsSent), atomic.LoadUint64(&c.PacketsReceived),
		atomic.LoadUint64(&c.AcksSent), atomic.LoadUint64(&c.AcksReceived),
		atomic.LoadUint64(&c.Retransmissions), atomic.LoadUint64(&c.DuplicatePackets),
		atomic.LoadUint64(&c.OutOfOrderPackets),
	)
}

var descriptors = []struct {
	name  string
	help  string
	field func(*Counters) *uint64
}{
	{"relxfer_packets_sent_total", "Data packets transmitted, including retransmissions.", func(c *Counters) *uint64 { return &c.PacketsSent }},
	{"relxfer_packets_received_total", "Data packets accepted or rejected after a length/window check.", func(c *Counters) *uint64 { return &c.PacketsReceived }},
	{"relxfer_acks_sent_total", "Acknowledgments transmitted.", func(c *Counters) *uint64 { return &c.AcksSent }},
	{"relxfer_acks_received_total", "Acknowledgments received by the sender.", func(c *Counters) *uint64 { return &c.AcksReceived }},
	{"relxfer_retransmissions_total", "Data packets retransmitted after an ack timeout.", func(c *Counters) *uint64 { return &c.Retransmissions }},
	{"relxfer_duplicate_packets_total", "Data packets received that were already delivered or already buffered.", func(c *Counters) *uint64 { return &c.DuplicatePackets }},
	{"relxfer_out_of_order_packets_total", "Data packets buffered ahead of the expected sequence number.", func(c *Counters) *uint64 { return &c.OutOfOrderPackets }},
}

// Describe implements prometheus.Collector.
func (c *Counters) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- prometheus.NewDesc(d.name, d.help, nil, prometheus.Labels{"role": c.Role})
	}
}

// Collect implements prometheus.Collector.
func (c *Counters) Collect(ch chan<- prometheus.Metric) {
	for _, d := range descriptors {
		desc := prometheus.NewDesc(d.name, d.help, nil, prometheus.Labels{"role": c.Role})
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(atomic.LoadUint64(d.field(c))))
	}
}

// LossRate computes the operator-facing loss-rate report from the
// original file size and the number of bytes actually written out. The
// receiver core itself neither knows nor needs the original size for
// correctness; this is purely a post-hoc comparison for the CLI to
// print.
func LossRate(originalSize, deliveredSize int) float64 {
	if originalSize <= 0 {
		return 0
	}
	lost := originalSize - deliveredSize
	if lost < 0 {
		lost = 0
	}
	return float64(lost) / float64(originalSize)
}
