package inputshare

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"inputshare/internal/api"
	"inputshare/internal/config"
	"inputshare/internal/edge"
	"inputshare/internal/geometry"
	"inputshare/internal/input"
	"inputshare/internal/sched"
	"inputshare/internal/session"
	"inputshare/internal/transport"
	"inputshare/internal/tray"
)

// buildLayout resolves the display topology: an explicit override wins,
// otherwise the OS is asked.
func buildLayout(cfg config.Config) (geometry.Layout, error) {
	if len(cfg.Displays) > 0 {
		displays := make([]geometry.Rect, 0, len(cfg.Displays))
		for _, s := range cfg.Displays {
			r, err := parseDisplay(s)
			if err != nil {
				return geometry.Layout{}, err
			}
			displays = append(displays, r)
		}
		return geometry.NewLayout(displays), nil
	}
	layout, err := geometry.Detect()
	if err != nil {
		return geometry.Layout{}, fmt.Errorf("display detection failed and no --display override given: %w", err)
	}
	return layout, nil
}

func parseDisplay(s string) (geometry.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Rect{}, fmt.Errorf("%w: display %q is not x,y,w,h", errUsage, s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("%w: display %q: %v", errUsage, s, err)
		}
		vals[i] = v
	}
	return geometry.Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}

func edgeFromConfig(ec config.EdgeConfig, fallback edge.Zone) edge.Config {
	zone := edge.Zone(ec.Zone)
	switch zone {
	case edge.ZoneLeft, edge.ZoneRight, edge.ZoneTopLeft, edge.ZoneTopRight:
	default:
		zone = fallback
	}
	out := edge.DefaultConfig(zone)
	if ec.EnterPx > 0 {
		out.EnterThreshold = ec.EnterPx
	}
	if ec.ExitPx > out.EnterThreshold {
		out.ExitThreshold = ec.ExitPx
	}
	if ec.DwellMs > 0 {
		out.DwellTime = time.Duration(ec.DwellMs) * time.Millisecond
	}
	return out
}

func sessionConfig(cfg config.Config) session.Config {
	sc := session.DefaultConfig(cfg.DeviceID, cfg.Name)
	sc.Zone = edgeFromConfig(cfg.Edge, edge.ZoneRight)
	sc.ReturnZone = edgeFromConfig(cfg.Return, edge.ZoneLeft)
	if cfg.ActivationTimeoutMs > 0 {
		sc.ActivationTimeout = cfg.ActivationTimeout()
	}
	if cfg.CoalesceMs > 0 {
		sc.CoalesceInterval = cfg.CoalesceInterval()
	}
	return sc
}

// tlsConfigs validates the TLS flag triple and builds both directions.
// All-or-nothing: partial material is an argument error, none at all
// selects plain TCP for development setups.
func tlsConfigs(cfg config.Config) (client *tls.Config, server *tls.Config, err error) {
	t := cfg.TLS
	if !t.Enabled() {
		return nil, nil, nil
	}
	if t.IdentityP12 == "" || t.PinSHA256 == "" {
		return nil, nil, fmt.Errorf("%w: --identity-p12 and --pin-sha256 must be given together", errUsage)
	}
	identity, err := transport.LoadIdentity(t.IdentityP12, t.IdentityPass)
	if err != nil {
		return nil, nil, err
	}
	pin, err := transport.ParseFingerprint(t.PinSHA256)
	if err != nil {
		return nil, nil, err
	}
	return transport.ClientTLS(identity, pin), transport.ServerTLS(identity, pin), nil
}

// peerRuntime bundles everything one running peer owns.
type peerRuntime struct {
	cfg      config.Config
	log      *slog.Logger
	layout   geometry.Layout
	capture  input.Capture
	injector input.Injector
	statusAPI *api.Server
	trayUI    *tray.Tray
	observers []session.Observer

	done chan struct{}
}

// newPeerRuntime probes HID access once at startup and builds the
// shared adapters and observers. Missing HID capability is an error
// here, so send and receive stop before any connection is made;
// mock-receive builds no runtime and runs without HID access.
func newPeerRuntime(cfg config.Config, log *slog.Logger) (*peerRuntime, error) {
	layout, err := buildLayout(cfg)
	if err != nil {
		return nil, err
	}
	if err := input.CheckPermission(); err != nil {
		return nil, err
	}
	capture, err := input.NewSystemCapture(log)
	if err != nil {
		return nil, err
	}
	injector, err := input.NewSystemInjector()
	if err != nil {
		return nil, err
	}

	rt := &peerRuntime{
		cfg:      cfg,
		log:      log,
		layout:   layout,
		capture:  capture,
		injector: injector,
		done:     make(chan struct{}),
	}
	if cfg.StatusPort != 0 {
		rt.statusAPI = api.NewServer(log)
		if err := rt.statusAPI.Start(cfg.StatusPort); err != nil {
			return nil, err
		}
		rt.observers = append(rt.observers, rt.statusAPI)
	}
	if cfg.Tray {
		rt.trayUI = tray.New(cfg.Name)
		rt.observers = append(rt.observers, rt.trayUI)
	}
	rt.observers = append(rt.observers, session.ObserverFunc(func(st session.Status, reason string) {
		if reason != "" {
			log.Info("status", "state", st, "reason", reason)
		} else {
			log.Info("status", "state", st)
		}
	}))
	return rt, nil
}

// newController builds one session over an established stream and
// starts it. The controller is the framed connection's handler.
func (rt *peerRuntime) newController(nc net.Conn) (*session.Controller, *sched.Queue, error) {
	queue := sched.New()
	ctrl := session.New(sessionConfig(rt.cfg), rt.layout, rt.capture, rt.injector, queue, rt.log)
	for _, o := range rt.observers {
		ctrl.AddObserver(o)
	}
	conn := transport.NewFramedConn(nc, ctrl, rt.log)
	if err := ctrl.Start(conn); err != nil {
		queue.Close()
		return nil, nil, err
	}
	return ctrl, queue, nil
}

func (rt *peerRuntime) close() {
	close(rt.done)
	rt.capture.Stop()
	if rt.statusAPI != nil {
		rt.statusAPI.Stop()
	}
}

// notifyInterrupt subscribes ch to the process termination signals.
func notifyInterrupt(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}

// runUntilSignal blocks the main goroutine: inside the tray loop when
// the tray is enabled, on the signal channel otherwise. The body runs
// in the background and may request shutdown via the stop function it
// is given.
func (rt *peerRuntime) runUntilSignal(body func(stop func())) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(stopped) }) }

	go body(stop)

	if rt.trayUI != nil {
		go func() {
			select {
			case <-sig:
			case <-stopped:
			}
			rt.trayUI.Quit()
		}()
		rt.trayUI.Run()
		stop()
		return
	}

	select {
	case <-sig:
		rt.log.Info("interrupted")
	case <-stopped:
	}
}
