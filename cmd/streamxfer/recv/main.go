// Command streamxfer-recv is the other half of the baseline
// stream-transport reference: accept one TCP connection, copy
// everything it sends until EOF, and write the result out.
package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/afero"

	"github.com/datawire/relxfer/pkg/fileio"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: streamxfer-recv <tcp_port> <output_file>")
		os.Exit(1)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", os.Args[1]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-recv:", err)
		os.Exit(1)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-recv:", err)
		os.Exit(1)
	}
	defer conn.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-recv:", err)
		os.Exit(1)
	}

	fs := afero.NewOsFs()
	if err := fileio.WriteAll(fs, os.Args[2], buf.Bytes()); err != nil {
		fmt.Fprintln(os.Stderr, "streamxfer-recv:", err)
		os.Exit(1)
	}
	fmt.Printf("received %d bytes\n", buf.Len())
}
