// Command streamxfer-send is the baseline stream-transport reference:
// it just opens a TCP connection and copies the file over it. It is
// intentionally trivial — it exists only so the reliable-datagram
// protocol has something to be compared against.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/afero"

	"github.com/datawire/relxfer/pkg/fileio"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: streamxfer-send <file_path> <receiver_ip> <tcp_port>")
		os.Exit(1)
	}
	fs := afero.NewOsFs()
	data, err := fileio.ReadAll(fs, os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-send:", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(os.Args[2], os.Args[3]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-send:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-send:", err)
		os.Exit(1)
	}
	fmt.Printf("sent %d bytes\n", len(data))
}
