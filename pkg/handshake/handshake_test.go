package handshake_test

import (
	"sync"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/relxfer/pkg/handshake"
	"github.com/datawire/relxfer/pkg/pconn/fakepipe"
	"github.com/datawire/relxfer/pkg/relconfig"
)

func testConfig() relconfig.Config {
	cfg := relconfig.Default()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	cfg.ReceiverSynAckResend = 20 * time.Millisecond
	cfg.MaxHandshakeRetries = 3
	return cfg
}

func TestNegotiatesMinimumWindow(t *testing.T) {
	// S5: sender proposes 8, receiver prefers 5; both must land on 5.
	ctx := dlog.NewTestContext(t, false)
	medium := fakepipe.NewMedium()
	senderConn, receiverConn := medium.NewPair("sender", "receiver")
	cfg := testConfig()

	var wg sync.WaitGroup
	wg.Add(2)

	var senderWindow, receiverWindow uint16
	var senderErr, receiverErr error
	go func() {
		defer wg.Done()
		senderWindow, senderErr = handshake.Open(ctx, senderConn, fakepipe.Addr("receiver"), 8, cfg)
	}()
	go func() {
		defer wg.Done()
		receiverWindow, _, receiverErr = handshake.Accept(ctx, receiverConn, 5, cfg)
	}()
	wg.Wait()

	require.NoError(t, senderErr)
	require.NoError(t, receiverErr)
	assert.EqualValues(t, 5, senderWindow)
	assert.EqualValues(t, 5, receiverWindow)
}

func TestHandshakeSurvivesSynAckLoss(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	medium := fakepipe.NewMedium()
	var mu sync.Mutex
	dropNext := true
	medium.Hook = func(from, to fakepipe.Addr, payload []byte) []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		// Drop the first SYN-ACK (receiver -> sender) only.
		if from == "receiver" && len(payload) == 2 && dropNext {
			dropNext = false
			return nil
		}
		return []time.Duration{0}
	}
	senderConn, receiverConn := medium.NewPair("sender", "receiver")
	cfg := testConfig()

	var wg sync.WaitGroup
	wg.Add(2)
	var senderWindow, receiverWindow uint16
	var senderErr, receiverErr error
	go func() {
		defer wg.Done()
		senderWindow, senderErr = handshake.Open(ctx, senderConn, fakepipe.Addr("receiver"), 5, cfg)
	}()
	go func() {
		defer wg.Done()
		receiverWindow, _, receiverErr = handshake.Accept(ctx, receiverConn, 5, cfg)
	}()
	wg.Wait()

	require.NoError(t, senderErr)
	require.NoError(t, receiverErr)
	assert.EqualValues(t, 5, senderWindow)
	assert.EqualValues(t, 5, receiverWindow)
}

func TestHandshakeFailsWhenPeerAbsent(t *testing.T) {
	// S6: receiver never answers, sender exhausts retries and fails.
	ctx := dlog.NewTestContext(t, false)
	medium := fakepipe.NewMedium()
	senderConn, _ := medium.NewPair("sender", "receiver")
	cfg := testConfig()

	start := time.Now()
	_, err := handshake.Open(ctx, senderConn, fakepipe.Addr("receiver"), 5, cfg)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, handshake.ErrHandshakeFailed)
	assert.GreaterOrEqual(t, elapsed, time.Duration(cfg.MaxHandshakeRetries)*cfg.HandshakeTimeout)
}
