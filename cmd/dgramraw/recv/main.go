// Command dgramraw-recv is the receiving half of the raw-datagram
// baseline: it keeps every data packet's payload keyed by sequence
// number and, after an idle period, writes the payloads that arrived in
// sequence order (a missing packet leaves no gap in the output) and
// reports whatever made it through. No acks, no retries.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/datawire/relxfer/pkg/fileio"
	"github.com/datawire/relxfer/pkg/relstats"
	"github.com/datawire/relxfer/pkg/wire"
)

const idleTimeout = 5 * time.Second

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: dgramraw-recv <udp_port> <output_file> <original_file>")
		os.Exit(1)
	}
	fs := afero.NewOsFs()
	originalSize, err := fileio.Size(fs, os.Args[3])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-recv:", err)
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-recv: invalid port:", err)
		os.Exit(1)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-recv:", err)
		os.Exit(1)
	}
	defer conn.Close()

	received := make(map[uint32][]byte)
	buf := make([]byte, wire.MaxDatagram)
	lastPacket := time.Now()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			fmt.Fprintln(os.Stderr, "dgramraw-recv:", err)
			os.Exit(1)
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastPacket) >= idleTimeout {
					break
				}
				continue
			}
			fmt.Fprintln(os.Stderr, "dgramraw-recv:", err)
			os.Exit(1)
		}
		lastPacket = time.Now()
		seq, payload, decErr := wire.DecodeData(buf[:n])
		if decErr != nil {
			continue
		}
		received[seq] = append([]byte(nil), payload...)
	}

	var maxSeq uint32
	for seq := range received {
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	out := make([]byte, 0, int(maxSeq)*wire.Chunk)
	for seq := uint32(1); seq <= maxSeq; seq++ {
		out = append(out, received[seq]...)
	}

	if err := fileio.WriteAll(fs, os.Args[2], out); err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-recv:", err)
		os.Exit(1)
	}
	fmt.Printf("received %d/%d expected packets\n", len(received), maxSeq)
	fmt.Printf("loss rate: %.4f (%d/%d bytes)\n", relstats.LossRate(originalSize, len(out)), originalSize-len(out), originalSize)
}
