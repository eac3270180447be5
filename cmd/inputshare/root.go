// Package inputshare wires the CLI onto the session core.
package inputshare

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"inputshare/internal/config"
)

// errUsage marks argument problems; Execute maps it to exit code 2.
var errUsage = errors.New("invalid arguments")

var (
	cfgFile string
	mgr     *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "inputshare",
	Short: "Share one mouse and keyboard across two hosts",
	Long: `Inputshare forwards mouse and keyboard input between two hosts on the
local network. When the cursor dwells at a configured screen edge,
ownership transfers to the peer: local input is suppressed, captured
events are forwarded over an encrypted connection, and the peer injects
them as if they had originated locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code: 0 on clean
// termination, 2 on argument errors, 1 otherwise.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	slog.Error(err.Error())
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is the per-user inputshare/config.json)")
	pf.Int("port", 0, fmt.Sprintf("TCP port (default %d)", config.DefaultPort))
	pf.String("identity-p12", "", "path to the PKCS#12 identity bundle")
	pf.String("identity-pass", "", "password for the identity bundle")
	pf.String("pin-sha256", "", "hex SHA-256 fingerprint of the peer's leaf certificate")
	pf.String("name", "", "friendly display name advertised on the local link")
	pf.Bool("tray", false, "show the system tray status indicator")
	pf.Int("status-port", 0, "serve the local status API on this port")
	pf.StringSlice("display", nil, "display rect override as x,y,w,h (repeatable)")

	viper.SetEnvPrefix("inputshare")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(pf); err != nil {
		slog.Error("flag binding failed", "err", err)
	}
}

func initConfig() {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			slog.Error("config path", "err", err)
			os.Exit(1)
		}
	}
	var err error
	mgr, err = config.NewManager(path)
	if err != nil {
		slog.Error("config load failed", "path", path, "err", err)
		os.Exit(2)
	}
}

// resolved merges the persisted configuration with flag and environment
// overrides.
func resolved() config.Config {
	cfg := mgr.Get()
	if v := viper.GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if cfg.Port == 0 {
		cfg.Port = config.DefaultPort
	}
	if v := viper.GetString("identity-p12"); v != "" {
		cfg.TLS.IdentityP12 = v
	}
	if v := viper.GetString("identity-pass"); v != "" {
		cfg.TLS.IdentityPass = v
	}
	if v := viper.GetString("pin-sha256"); v != "" {
		cfg.TLS.PinSHA256 = v
	}
	if v := viper.GetString("name"); v != "" {
		cfg.Name = v
	}
	if viper.GetBool("tray") {
		cfg.Tray = true
	}
	if v := viper.GetInt("status-port"); v != 0 {
		cfg.StatusPort = v
	}
	if v := viper.GetStringSlice("display"); len(v) > 0 {
		cfg.Displays = v
	}
	return cfg
}
