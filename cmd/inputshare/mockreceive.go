package inputshare

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"inputshare/internal/session"
)

var mockReceiveCmd = &cobra.Command{
	Use:   "mock-receive",
	Short: "Accept any peer and print received events (development only)",
	Long: `mock-receive accepts any peer over plain TCP, prints every received
input event as one text record on stdout, and answers activate and
deactivate with the matching ack. No input is injected.`,
	RunE: runMockReceive,
}

func init() {
	rootCmd.AddCommand(mockReceiveCmd)
}

func runMockReceive(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: mock-receive takes no positional arguments", errUsage)
	}
	cfg := resolved()
	sink := session.NewMockSink(os.Stdout, slog.Default())

	errCh := make(chan error, 1)
	go func() { errCh <- sink.ListenAndServe(cfg.Port) }()

	sig := make(chan os.Signal, 1)
	notifyInterrupt(sig)
	select {
	case err := <-errCh:
		return err
	case <-sig:
		sink.Close()
		return nil
	}
}
