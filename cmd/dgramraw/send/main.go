// Command dgramraw-send is the baseline raw-datagram reference: it
// blasts every chunk of the file as one fire-and-forget UDP datagram,
// using the same data-packet wire layout as the reliable protocol (so a
// packet capture is directly comparable) but with no handshake, no
// acks, and no retries whatsoever.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/afero"

	"github.com/datawire/relxfer/pkg/fileio"
	"github.com/datawire/relxfer/pkg/wire"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: dgramraw-send <file_path> <receiver_ip> <udp_port>")
		os.Exit(1)
	}
	fs := afero.NewOsFs()
	data, err := fileio.ReadAll(fs, os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-send:", err)
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-send: invalid port:", err)
		os.Exit(1)
	}
	remote := &net.UDPAddr{IP: net.ParseIP(os.Args[2]), Port: port}
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dgramraw-send:", err)
		os.Exit(1)
	}
	defer conn.Close()

	total := wire.TotalPackets(len(data))
	for seq := uint32(1); seq <= total; seq++ {
		start := int(seq-1) * wire.Chunk
		end := start + wire.Chunk
		if end > len(data) {
			end = len(data)
		}
		encoded, err := wire.EncodeData(seq, data[start:end])
		if err != nil {
			fmt.Fprintln(os.Stderr, "dgramraw-send:", err)
			os.Exit(1)
		}
		if _, err := conn.Write(encoded); err != nil {
			fmt.Fprintf(os.Stderr, "dgramraw-send: packet %d: %v\n", seq, err)
		}
	}
	fmt.Printf("blasted %d packets (%d bytes)\n", total, len(data))
}
