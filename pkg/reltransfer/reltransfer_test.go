package reltransfer_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/relxfer/pkg/pconn/fakepipe"
	"github.com/datawire/relxfer/pkg/relconfig"
	"github.com/datawire/relxfer/pkg/relstats"
	"github.com/datawire/relxfer/pkg/reltransfer"
	"github.com/datawire/relxfer/pkg/wire"
)

func fastConfig() relconfig.Config {
	cfg := relconfig.Default()
	cfg.AckTimeout = 30 * time.Millisecond
	cfg.AckDrainPoll = 2 * time.Millisecond
	cfg.ReceiverIdle = 150 * time.Millisecond
	return cfg
}

func runTransfer(t *testing.T, data []byte, window uint16, hook func(from, to fakepipe.Addr, payload []byte) []time.Duration) ([]byte, *relstats.Counters, *relstats.Counters) {
	t.Helper()
	ctx, cancel := context.WithTimeout(dlog.NewTestContext(t, false), 10*time.Second)
	defer cancel()

	medium := fakepipe.NewMedium()
	medium.Hook = hook
	senderConn, receiverConn := medium.NewPair("sender", "receiver")

	cfg := fastConfig()
	senderStats := &relstats.Counters{Role: "sender"}
	receiverStats := &relstats.Counters{Role: "receiver"}

	var wg sync.WaitGroup
	wg.Add(2)
	var sendErr, recvErr error
	var received []byte
	go func() {
		defer wg.Done()
		sendErr = reltransfer.Send(ctx, senderConn, fakepipe.Addr("receiver"), data, window, cfg, senderStats)
	}()
	go func() {
		defer wg.Done()
		received, recvErr = reltransfer.Receive(ctx, receiverConn, fakepipe.Addr("sender"), window, cfg, receiverStats)
	}()
	wg.Wait()

	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	return received, senderStats, receiverStats
}

func TestCleanChannel(t *testing.T) {
	// S1: 5000-byte file, zero loss.
	data := make([]byte, 5000)
	rand.New(rand.NewSource(1)).Read(data)

	got, senderStats, _ := runTransfer(t, data, 5, nil)
	require.True(t, cmp.Equal(data, got), cmp.Diff(data, got))
	assert.EqualValues(t, 6, wire.TotalPackets(len(data)))
	assert.EqualValues(t, 0, senderStats.Retransmissions)
}

func TestSinglePacketLoss(t *testing.T) {
	// S2: packet 3 is dropped on its first two transmissions.
	data := make([]byte, wire.Chunk*10)
	rand.New(rand.NewSource(2)).Read(data)

	var mu sync.Mutex
	dropsLeft := 2
	hook := func(from, to fakepipe.Addr, payload []byte) []time.Duration {
		if from == "sender" && len(payload) >= 5 {
			seq, _, _ := wire.DecodeData(payload)
			if seq == 3 {
				mu.Lock()
				defer mu.Unlock()
				if dropsLeft > 0 {
					dropsLeft--
					return nil
				}
			}
		}
		return []time.Duration{0}
	}

	got, senderStats, receiverStats := runTransfer(t, data, 10, hook)
	assert.Equal(t, data, got)
	assert.GreaterOrEqual(t, senderStats.Retransmissions, uint64(2))
	assert.GreaterOrEqual(t, receiverStats.OutOfOrderPackets, uint64(7))
}

func TestAckLoss(t *testing.T) {
	// S3: every ack is dropped with 50% probability.
	data := make([]byte, wire.Chunk*8)
	rand.New(rand.NewSource(3)).Read(data)

	r := rand.New(rand.NewSource(99))
	hook := func(from, to fakepipe.Addr, payload []byte) []time.Duration {
		if from == "receiver" && len(payload) == 4 {
			if r.Float64() < 0.5 {
				return nil
			}
		}
		return []time.Duration{0}
	}

	got, _, receiverStats := runTransfer(t, data, 5, hook)
	assert.Equal(t, data, got)
	assert.Greater(t, receiverStats.DuplicatePackets, uint64(0))
}

func TestReorderingDeliversInSequence(t *testing.T) {
	// S4: shuffle data-packet delivery order; final output must still
	// be in strict sequence order.
	data := make([]byte, wire.Chunk*5)
	rand.New(rand.NewSource(4)).Read(data)

	hook := func(from, to fakepipe.Addr, payload []byte) []time.Duration {
		if from == "sender" && len(payload) >= 5 {
			seq, _, _ := wire.DecodeData(payload)
			// Delay packet 1 behind packet 2, and packet 3 behind packet 4.
			switch seq {
			case 1:
				return []time.Duration{6 * time.Millisecond}
			case 3:
				return []time.Duration{6 * time.Millisecond}
			}
		}
		return []time.Duration{0}
	}

	got, _, _ := runTransfer(t, data, 5, hook)
	require.True(t, cmp.Equal(data, got), cmp.Diff(data, got))
}

func TestWindowSaturation(t *testing.T) {
	data := make([]byte, wire.Chunk*40)
	rand.New(rand.NewSource(5)).Read(data)

	ctx, cancel := context.WithTimeout(dlog.NewTestContext(t, false), 10*time.Second)
	defer cancel()

	const window = 7
	medium := fakepipe.NewMedium()
	var mu sync.Mutex
	dataSent := 0
	violations := 0
	acked := make(map[uint32]bool)
	firstSent := make(map[uint32]bool)
	medium.Hook = func(from, to fakepipe.Addr, payload []byte) []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case from == "receiver" && len(payload) == 4:
			seq, _ := wire.DecodeAck(payload)
			acked[seq] = true
		case from == "sender" && len(payload) >= 5:
			dataSent++
			seq, _, _ := wire.DecodeData(payload)
			if !firstSent[seq] {
				firstSent[seq] = true
				// next_seq - base <= window: a fresh packet s may only go
				// out once every packet up to s-window has been acked.
				for k := uint32(1); k+window <= seq; k++ {
					if !acked[k] {
						violations++
					}
				}
			}
		}
		return []time.Duration{0}
	}
	senderConn, receiverConn := medium.NewPair("sender", "receiver")
	cfg := fastConfig()
	senderStats := &relstats.Counters{Role: "sender"}
	receiverStats := &relstats.Counters{Role: "receiver"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, reltransfer.Send(ctx, senderConn, fakepipe.Addr("receiver"), data, window, cfg, senderStats))
	}()
	go func() {
		defer wg.Done()
		_, err := reltransfer.Receive(ctx, receiverConn, fakepipe.Addr("sender"), window, cfg, receiverStats)
		require.NoError(t, err)
	}()
	wg.Wait()
	// The transfer made progress, and no packet was first sent while an
	// older packet a full window or more behind it was still unacknowledged.
	assert.Greater(t, dataSent, 0)
	assert.Zero(t, violations)
}
