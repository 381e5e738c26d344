// Package handshake drives the three-way SYN / SYN-ACK / ACK exchange
// that negotiates the sliding window size before any data flows. It is
// the only place either peer learns the other's address from the wire
// rather than from its own CLI arguments.
package handshake

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/relxfer/pkg/pconn"
	"github.com/datawire/relxfer/pkg/relconfig"
	"github.com/datawire/relxfer/pkg/wire"
)

// ErrHandshakeFailed is returned by Open when the peer never answers
// within MaxHandshakeRetries attempts.
var ErrHandshakeFailed = errors.New("handshake failed")

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Open runs the active (sender) side of the handshake: it proposes
// proposed as its window size, retries up to cfg.MaxHandshakeRetries
// times at cfg.HandshakeTimeout intervals, and returns the window size
// the receiver negotiated down to (or proposed itself, unchanged).
func Open(ctx context.Context, conn pconn.Conn, remote net.Addr, proposed uint16, cfg relconfig.Config) (uint16, error) {
	buf := make([]byte, wire.MaxDatagram)
	syn := wire.NewHandshakeWord(proposed, wire.SYN).Encode()

	for attempt := 1; attempt <= cfg.MaxHandshakeRetries; attempt++ {
		dlog.Infof(ctx, "handshake: sending SYN(window=%d) attempt %d/%d", proposed, attempt, cfg.MaxHandshakeRetries)
		if _, err := conn.WriteTo(syn, remote); err != nil {
			dlog.Errorf(ctx, "handshake: send SYN failed: %v", err)
			continue
		}

		deadline := time.Now().Add(cfg.HandshakeTimeout)
		for {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			if err := conn.SetReadDeadline(deadline); err != nil {
				return 0, errors.Wrap(err, "set read deadline")
			}
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				if isTimeout(err) {
					break
				}
				return 0, errors.Wrap(err, "read during handshake")
			}
			if n != 2 {
				dlog.Debugf(ctx, "handshake: discarding %d-byte datagram during handshake", n)
				continue
			}
			word, decErr := wire.DecodeHandshake(buf[:n])
			if decErr != nil {
				continue
			}
			if !word.Flags().Has(wire.SYN | wire.ACK) {
				dlog.Debugf(ctx, "handshake: discarding non-SYNACK handshake datagram flags=%s", word.Flags())
				continue
			}
			negotiated := word.WindowSize()
			ack := wire.NewHandshakeWord(negotiated, wire.ACK).Encode()
			if _, err := conn.WriteTo(ack, addr); err != nil {
				return 0, errors.Wrap(err, "send final ACK")
			}
			dlog.Infof(ctx, "handshake: negotiated window=%d with %s", negotiated, addr)
			return negotiated, nil
		}
		dlog.Infof(ctx, "handshake: timed out waiting for SYN-ACK")
	}
	return 0, errors.Wrapf(ErrHandshakeFailed, "no SYN-ACK after %d attempts", cfg.MaxHandshakeRetries)
}

// Accept runs the passive (receiver) side of the handshake. It blocks
// until a SYN arrives, replies with a SYN-ACK carrying
// min(peer_window, preferred), and retries that SYN-ACK indefinitely at
// cfg.ReceiverSynAckResend until the final ACK arrives. It returns the
// negotiated window and the sender's address, which becomes the bound
// remote endpoint for the rest of the session.
func Accept(ctx context.Context, conn pconn.Conn, preferred uint16, cfg relconfig.Config) (uint16, net.Addr, error) {
	buf := make([]byte, wire.MaxDatagram)

	var peer net.Addr
	var negotiated uint16
	for peer == nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, nil, errors.Wrap(err, "clear read deadline")
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return 0, nil, errors.Wrap(err, "read during handshake")
		}
		if n != 2 {
			dlog.Debugf(ctx, "handshake: discarding %d-byte datagram before SYN", n)
			continue
		}
		word, decErr := wire.DecodeHandshake(buf[:n])
		if decErr != nil || !word.Flags().Has(wire.SYN) {
			dlog.Debugf(ctx, "handshake: discarding non-SYN handshake datagram")
			continue
		}
		negotiated = minUint16(word.WindowSize(), preferred)
		peer = addr
		dlog.Infof(ctx, "handshake: SYN from %s, negotiating window=%d", peer, negotiated)
	}

	synack := wire.NewHandshakeWord(negotiated, wire.SYN|wire.ACK).Encode()
	for {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		if _, err := conn.WriteTo(synack, peer); err != nil {
			return 0, nil, errors.Wrap(err, "send SYN-ACK")
		}
		if err := conn.SetReadDeadline(time.Now().Add(cfg.ReceiverSynAckResend)); err != nil {
			return 0, nil, errors.Wrap(err, "set read deadline")
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				dlog.Debugf(ctx, "handshake: SYN-ACK unanswered, resending")
				continue
			}
			return 0, nil, errors.Wrap(err, "read during handshake")
		}
		if n != 2 {
			continue
		}
		word, decErr := wire.DecodeHandshake(buf[:n])
		if decErr != nil || !word.Flags().Has(wire.ACK) {
			dlog.Debugf(ctx, "handshake: discarding stray datagram from %s while awaiting final ACK", addr)
			continue
		}
		dlog.Infof(ctx, "handshake: complete, window=%d peer=%s", negotiated, peer)
		return negotiated, peer, nil
	}
}

func minUint16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
