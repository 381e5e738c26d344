// Command relsend is the sender side of the reliable-datagram protocol:
// it reads a file into memory, negotiates a window with the receiver,
// and drives the selective-repeat sender core until every packet has
// been acknowledged.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/relxfer/internal/rlog"
	"github.com/datawire/relxfer/internal/sockopt"
	"github.com/datawire/relxfer/pkg/fileio"
	"github.com/datawire/relxfer/pkg/handshake"
	"github.com/datawire/relxfer/pkg/relconfig"
	"github.com/datawire/relxfer/pkg/relstats"
	"github.com/datawire/relxfer/pkg/reltransfer"
)

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relsend: error:", err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "relsend <file_path> <receiver_ip> <udp_port>",
		Short: "send a file to a relrecv peer over the reliable-datagram protocol",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], args[2], configPath, logLevel)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML file overriding protocol tunables")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	return cmd
}

func run(filePath, receiverIP, udpPort, configPath, logLevel string) error {
	ctx := rlog.WithLogger(context.Background(), logLevel)

	fs := afero.NewOsFs()
	cfg, err := relconfig.Load(fs, configPath)
	if err != nil {
		return err
	}

	data, err := fileio.ReadAll(fs, filePath)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(udpPort)
	if err != nil {
		return fmt.Errorf("invalid udp port %q: %w", udpPort, err)
	}
	remote := &net.UDPAddr{IP: net.ParseIP(receiverIP), Port: port}
	if remote.IP == nil {
		return fmt.Errorf("invalid receiver ip %q", receiverIP)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("open udp socket: %w", err)
	}
	if err := sockopt.SetReceiveBuffer(conn, 1<<20); err != nil {
		dlog.Debugf(ctx, "relsend: raise SO_RCVBUF failed (continuing with default): %v", err)
	}

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
	grp.Go("transfer", func(ctx context.Context) error {
		window, err := handshake.Open(ctx, conn, remote, cfg.DefaultWindow, cfg)
		if err != nil {
			return err
		}
		stats := &relstats.Counters{Role: "sender"}
		if err := reltransfer.Send(ctx, conn, remote, data, window, cfg, stats); err != nil {
			return err
		}
		fmt.Println(stats)
		return nil
	})

	var result *multierror.Error
	result = multierror.Append(result, grp.Wait())
	result = multierror.Append(result, conn.Close())
	return result.ErrorOrNil()
}
