package reltransfer

import (
	"bytes"
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

// Receive accepts data packets from remote over conn using the
// selective-repeat discipline, acknowledging each accepted packet and
// reassembling the contiguous byte stream. It returns once no data
// packet has arrived for cfg.ReceiverIdle (stray handshake and malformed
// datagrams do not reset that clock), which is the only termination
// signal the protocol defines — there is no explicit end-of-stream message.
func Receive(ctx context.Context, conn pconn.Conn, remote net.Addr, window uint16, cfg relconfig.Config, stats *relstats.Counters) ([]byte, error) {
	sessionID := uuid.New().String()
	dlog.Infof(ctx, "receiver[%s]: accepting transfer from %s, window=%d", sessionID, remote, window)

	expected := uint32(1)
	var out bytes.Buffer
	pending := make(map[uint32][]byte)
	buf := make([]byte, wire.MaxDatagram)

	lastPacketTime := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return out.Bytes(), err
		}
		if err := conn.SetReadDeadline(time.Now().Add(cfg.ReceiverIdle)); err != nil {
			return out.Bytes(), errors.Wrap(err, "set read deadline")
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				if time.Since(lastPacketTime) >= cfg.ReceiverIdle {
					dlog.Infof(ctx, "receiver[%s]: idle for %s, ending transfer", sessionID, cfg.ReceiverIdle)
					break
				}
				continue
			}
			return out.Bytes(), errors.Wrap(err, "read data packet")
		}

		if n == 2 {
			dlog.Debugf(ctx, "receiver[%s]: discarding stray handshake datagram from %s", sessionID, addr)
			continue
		}
		if n < 5 {
			dlog.Debugf(ctx, "receiver[%s]: discarding malformed %d-byte datagram", sessionID, n)
			continue
		}

		seq, payload, decErr := wire.DecodeData(buf[:n])
		if decErr != nil {
			continue
		}
		payload = append([]byte(nil), payload...)
		lastPacketTime = time.Now()
		atomic.AddUint64(&stats.PacketsReceived, 1)

		switch {
		case seq >= expected && seq < expected+uint32(window):
			if _, err := conn.WriteTo(wire.EncodeAck(seq), addr); err != nil {
				dlog.Errorf(ctx, "receiver[%s]: send ack %d failed: %v", sessionID, seq, err)
			} else {
				atomic.AddUint64(&stats.AcksSent, 1)
			}
			if seq == expected {
				out.Write(payload)
				expected++
				for {
					buffered, ok := pending[expected]
					if !ok {
						break
					}
					out.Write(buffered)
					delete(pending, expected)
					expected++
				}
			} else if _, ok := pending[seq]; !ok {
				pending[seq] = payload
				atomic.AddUint64(&stats.OutOfOrderPackets, 1)
			} else {
				atomic.AddUint64(&stats.DuplicatePackets, 1)
			}
		case seq < expected:
			if _, err := conn.WriteTo(wire.EncodeAck(seq), addr); err != nil {
				dlog.Errorf(ctx, "receiver[%s]: send ack %d failed: %v", sessionID, seq, err)
			} else {
				atomic.AddUint64(&stats.AcksSent, 1)
			}
			atomic.AddUint64(&stats.DuplicatePackets, 1)
		default: // seq >= expected+window: outside the window, drop silently
			dlog.Debugf(ctx, "receiver[%s]: dropping out-of-window packet %d (expected %d, window %d)", sessionID, seq, expected, window)
		}
	}

	dlog.Infof(ctx, "receiver[%s]: transfer complete, delivered %d bytes, %s", sessionID, out.Len(), stats)
	return out.Bytes(), nil
}
