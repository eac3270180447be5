package inputshare

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"inputshare/internal/discovery"
	"inputshare/internal/transport"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Listen for a peer and inject forwarded input",
	RunE:  runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
}

func runReceive(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: receive takes no positional arguments", errUsage)
	}
	cfg := resolved()
	log := slog.Default()

	_, serverTLS, err := tlsConfigs(cfg)
	if err != nil {
		return err
	}

	rt, err := newPeerRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	var ln net.Listener
	if serverTLS != nil {
		ln, err = transport.Listen(cfg.Port, serverTLS)
	} else {
		log.Warn("no TLS material configured, using plain TCP")
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	}
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info("listening", "port", cfg.Port)

	adv, err := discovery.Advertise(cfg.Name, cfg.Port, log)
	if err != nil {
		log.Warn("advertisement failed", "err", err)
	} else {
		defer adv.Shutdown()
	}

	var exitErr error
	rt.runUntilSignal(func(stop func()) {
		// One peer at a time; the next connection is accepted after the
		// previous session ends.
		for {
			nc, err := ln.Accept()
			if err != nil {
				select {
				case <-rt.done:
				default:
					exitErr = err
					stop()
				}
				return
			}
			log.Info("peer connected", "addr", nc.RemoteAddr().String())

			ctrl, queue, err := rt.newController(nc)
			if err != nil {
				log.Error("session start failed", "err", err)
				nc.Close()
				continue
			}
			ctrl.Wait()
			ctrl.Stop()
			queue.Close()
			log.Info("session ended")
		}
	})
	return exitErr
}
