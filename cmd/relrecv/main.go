// Command relrecv is the receiver side of the reliable-datagram
// protocol: it negotiates a window with an incoming sender, drives the
// selective-repeat receiver core until the sender goes quiet, and
// writes the reassembled buffer out.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		fmt.Fprintln(os.Stderr, "relrecv: error:", err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	var configPath, logLevel, metricsAddr string

	cmd := &cobra.Command{
		Use:   "relrecv <udp_port> <output_file> <original_file>",
		Short: "receive a file from a relsend peer over the reliable-datagram protocol",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], args[2], configPath, logLevel, metricsAddr)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML file overriding protocol tunables")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus /metrics here until the transfer ends")
	return cmd
}

func run(udpPort, outputFile, originalFile, configPath, logLevel, metricsAddr string) error {
	ctx := rlog.WithLogger(context.Background(), logLevel)

	fs := afero.NewOsFs()
	cfg, err := relconfig.Load(fs, configPath)
	if err != nil {
		return err
	}

	originalSize, err := fileio.Size(fs, originalFile)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(udpPort)
	if err != nil {
		return fmt.Errorf("invalid udp port %q: %w", udpPort, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	if err := sockopt.SetReceiveBuffer(conn, 1<<20); err != nil {
		dlog.Debugf(ctx, "relrecv: raise SO_RCVBUF failed (continuing with default): %v", err)
	}

	stats := &relstats.Counters{Role: "receiver"}

	ctx, cancelTransfer := context.WithCancel(ctx)
	defer cancelTransfer()

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(stats)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		grp.Go("metrics", func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	grp.Go("transfer", func(ctx context.Context) error {
		defer cancelTransfer()
		window, remote, err := handshake.Accept(ctx, conn, cfg.DefaultWindow, cfg)
		if err != nil {
			return err
		}
		received, err := reltransfer.Receive(ctx, conn, remote, window, cfg, stats)
		if err != nil {
			return err
		}
		if err := fileio.WriteAll(fs, outputFile, received); err != nil {
			return err
		}
		fmt.Println(stats)
		fmt.Printf("loss rate: %.4f (%d/%d bytes)\n", relstats.LossRate(originalSize, len(received)), originalSize-len(received), originalSize)
		return nil
	})

	var result *multierror.Error
	result = multierror.Append(result, grp.Wait())
	result = multierror.Append(result, conn.Close())
	return result.ErrorOrNil()
}
