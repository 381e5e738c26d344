// Package reltransfer implements the selective-repeat sender and
// receiver state machines that move a byte buffer across a connection
// once the handshake (package handshake) has negotiated a window size.
package reltransfer

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/relxfer/pkg/pconn"
	"github.com/datawire/relxfer/pkg/relconfig"
	"github.com/datawire/relxfer/pkg/relstats"
	"github.com/datawire/relxfer/pkg/wire"
)

// windowEntry is one in-flight data packet on the sender side.
type windowEntry struct {
	encoded    []byte
	sendTime   time.Time
	acked      bool
	retryCount int
}

// Send transmits data to remote over conn using a selective-repeat
// sliding-window discipline, and returns once base has advanced past
// the last packet. It never returns an
// error for datagram loss, duplication, or reordering — those are
// absorbed by the protocol — only for a canceled context, a packet that
// cannot be encoded, or a failure to set the socket's read deadline.
func Send(ctx context.Context, conn pconn.Conn, remote net.Addr, data []byte, window uint16, cfg relconfig.Config, stats *relstats.Counters) error {
	sessionID := uuid.New().String()

	total := wire.TotalPackets(len(data))
	dlog.Infof(ctx, "sender[%s]: starting transfer of %d bytes as %d packets, window=%d", sessionID, len(data), total, window)

	base := uint32(1)
	nextSeq := uint32(1)
	win := make(map[uint32]*windowEntry, window)
	buf := make([]byte, wire.MaxDatagram)

	for base <= total {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Phase 1: fill the window.
		for nextSeq < base+uint32(window) && nextSeq <= total {
			payload := chunkOf(data, nextSeq)
			encoded, err := wire.EncodeData(nextSeq, payload)
			if err != nil {
				return errors.Wrapf(err, "encode packet %d", nextSeq)
			}
			if _, err := conn.WriteTo(encoded, remote); err != nil {
				dlog.Errorf(ctx, "sender[%s]: send packet %d failed: %v", sessionID, nextSeq, err)
			}
			win[nextSeq] = &windowEntry{encoded: encoded, sendTime: time.Now()}
			atomic.AddUint64(&stats.PacketsSent, 1)
			nextSeq++
		}

		// Phase 2: scan for timeouts.
		now := time.Now()
		for seq, entry := range win {
			if entry.acked {
				continue
			}
			if now.Sub(entry.sendTime) >= cfg.AckTimeout {
				if _, err := conn.WriteTo(entry.encoded, remote); err != nil {
					dlog.Errorf(ctx, "sender[%s]: retransmit packet %d failed: %v", sessionID, seq, err)
				} else {
					entry.sendTime = now
					entry.retryCount++
					atomic.AddUint64(&stats.Retransmissions, 1)
					atomic.AddUint64(&stats.PacketsSent, 1)
				}
			}
		}

		// Phase 3: drain one ack, non-blockingly.
		if err := conn.SetReadDeadline(time.Now().Add(cfg.AckDrainPoll)); err != nil {
			return errors.Wrap(err, "set read deadline")
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !isTimeout(err) {
				dlog.Errorf(ctx, "sender[%s]: read ack failed: %v", sessionID, err)
			}
		} else if n == 4 {
			seq, decErr := wire.DecodeAck(buf[:n])
			if decErr == nil {
				atomic.AddUint64(&stats.AcksReceived, 1)
				if entry, ok := win[seq]; ok {
					entry.acked = true
				}
			}
		}

		for {
			entry, ok := win[base]
			if !ok || !entry.acked {
				break
			}
			delete(win, base)
			base++
		}
	}

	dlog.Infof(ctx, "sender[%s]: transfer complete, %s", sessionID, stats)
	return nil
}

func chunkOf(data []byte, seq uint32) []byte {
	start := int(seq-1) * wire.Chunk
	end := start + wire.Chunk
	if end > len(data) {
		end = len(data)
	}
	return data[start:end]
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
