// Package discovery finds Moonraker instances on the local network via mDNS.
//
// Moonraker advertises itself as _moonraker._tcp; a one-shot browse
// collects whoever answers within the timeout. There is no background
// daemon: the discover CLI command calls Browse, prints the results and
// exits.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// serviceType is the mDNS service Moonraker registers.
	serviceType = "_moonraker._tcp"

	// domain is the mDNS domain to browse.
	domain = "local"

	// defaultTimeout bounds a browse pass when the config gives none.
	defaultTimeout = 10 * time.Second
)

// Config controls a browse pass.
type Config struct {
	// Timeout bounds the browse. Zero means defaultTimeout.
	Timeout time.Duration

	// Interface restricts browsing to one network interface by name.
	// Empty means all interfaces.
	Interface string
}

// Printer is one discovered Moonraker instance.
type Printer struct {
	// Instance is the mDNS instance name, e.g. "Voron 350".
	Instance string

	// Host is the advertised hostname without the trailing dot,
	// e.g. "voron350.local".
	Host string

	// Port is the Moonraker API port, typically 7125.
	Port int

	// Addresses holds the resolved IPs as strings, IPv4 first.
	// Entries seen on several interfaces are merged.
	Addresses []string
}

// BaseURL returns the Moonraker root URL for this printer, preferring
// the first resolved address over the hostname. Suitable for the
// printer.base_url config field.
func (p Printer) BaseURL() string {
	host := p.Host
	if len(p.Addresses) > 0 {
		host = p.Addresses[0]
	}
	if host == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// Browse runs a one-shot mDNS browse for Moonraker instances.
//
// It collects answers until the timeout elapses or ctx is cancelled,
// merging entries that arrive on several interfaces, and returns the
// printers sorted by instance name. An empty network yields an empty
// slice, not an error.
func Browse(ctx context.Context, cfg Config) ([]Printer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(browseCtx, serviceType, domain, entries, removed, browseOptions(cfg)...)
	}()

	printers := make(map[string]*Printer)

	collecting := true
	for collecting {
		select {
		case entry, ok := <-entries:
			if !ok {
				collecting = false
				continue
			}
			p := entryToPrinter(entry)
			if existing, found := printers[p.Instance]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, p.Addresses)
			} else {
				printers[p.Instance] = &p
			}

		case _, ok := <-removed:
			// One-shot browse: departures within the window are ignored.
			if !ok {
				removed = nil
			}

		case err := <-errCh:
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrBrowseFailed, err)
			}
			// Browse setup succeeded; entries keep arriving until the
			// window closes.
			errCh = nil

		case <-browseCtx.Done():
			collecting = false
		}
	}

	out := make([]Printer, 0, len(printers))
	for _, p := range printers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// browseOptions returns zeroconf client options based on config.
func browseOptions(cfg Config) []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if cfg.Interface != "" {
		iface, err := net.InterfaceByName(cfg.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToPrinter converts a zeroconf entry, IPv4 addresses first.
func entryToPrinter(entry *zeroconf.ServiceEntry) Printer {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return Printer{
		Instance:  entry.Instance,
		Host:      strings.TrimSuffix(entry.HostName, "."),
		Port:      entry.Port,
		Addresses: addrs,
	}
}

// mergeAddresses adds new addresses to the existing list, skipping duplicates.
func mergeAddresses(existing, fresh []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range fresh {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}
