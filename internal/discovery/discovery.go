// Package discovery advertises and browses peers on the local link.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service both peers register under.
const ServiceType = "_inputshare._tcp"

const domain = "local."

// Record is one discovered peer.
type Record struct {
	Name string
	Host string
	Port int
	Addr net.IP
}

// Endpoint returns the dialable "ip:port" form.
func (r Record) Endpoint() string {
	return net.JoinHostPort(r.Addr.String(), fmt.Sprintf("%d", r.Port))
}

// Advertiser registers this host under its friendly display name.
type Advertiser struct {
	server *zeroconf.Server
	log    *slog.Logger
}

// Advertise publishes the service until Shutdown.
func Advertise(instance string, port int, log *slog.Logger) (*Advertiser, error) {
	if log == nil {
		log = slog.Default()
	}
	server, err := zeroconf.Register(instance, ServiceType, domain, port, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %q: %w", instance, err)
	}
	log = log.With("component", "discovery")
	log.Info("advertising", "name", instance, "port", port)
	return &Advertiser{server: server, log: log}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

// Browse collects peers advertising on the local link for the given
// window.
func Browse(ctx context.Context, timeout time.Duration, log *slog.Logger) ([]Record, error) {
	if log == nil {
		log = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var records []Record
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			records = append(records, Record{
				Name: entry.Instance,
				Host: entry.HostName,
				Port: entry.Port,
				Addr: entry.AddrIPv4[0],
			})
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-ctx.Done()
	<-done

	log.Debug("browse finished", "found", len(records))
	return records, nil
}
