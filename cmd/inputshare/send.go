package inputshare

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"inputshare/internal/discovery"
	"inputshare/internal/transport"
)

var sendHost string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Connect to a peer and hand input off at the configured edge",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendHost, "host", "", "peer address (omit to use the configured peer_host, or else the first discovered peer)")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: send takes no positional arguments", errUsage)
	}
	cfg := resolved()
	log := slog.Default()

	addr := sendHost
	if addr == "" {
		addr = cfg.PeerHost
	}
	if addr == "" {
		records, err := discovery.Browse(context.Background(), 3*time.Second, log)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no peers found on the local link; pass --host")
		}
		addr = records[0].Endpoint()
		log.Info("discovered peer", "name", records[0].Name, "addr", addr)
	} else if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprintf("%d", cfg.Port))
	}

	clientTLS, _, err := tlsConfigs(cfg)
	if err != nil {
		return err
	}

	rt, err := newPeerRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	var nc net.Conn
	if clientTLS != nil {
		nc, err = transport.Dial(addr, clientTLS, 10*time.Second)
	} else {
		log.Warn("no TLS material configured, using plain TCP")
		nc, err = net.DialTimeout("tcp", addr, 10*time.Second)
	}
	if err != nil {
		return err
	}

	ctrl, queue, err := rt.newController(nc)
	if err != nil {
		return err
	}
	defer queue.Close()
	defer ctrl.Stop()

	log.Info("connected", "peer", addr)

	errCh := make(chan error, 1)
	rt.runUntilSignal(func(stop func()) {
		ctrl.Wait()
		select {
		case <-rt.done:
			// Shutdown initiated locally; the session ending is expected.
		default:
			errCh <- fmt.Errorf("session ended: %w", transport.ErrConnectionLost)
		}
		stop()
	})
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
