package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"
)

// MDNSAdapter implements Adapter over multicast DNS.
type MDNSAdapter struct{}

// Announce publishes the service until ctx is cancelled.
func (m *MDNSAdapter) Announce(ctx context.Context, serviceInfo ServiceInfo) error {
	cfg := dnssd.Config{
		Name:   serviceInfo.Name,
		Type:   serviceInfo.Type,
		Domain: serviceInfo.Domain,
		// mdns multicasts to the local segment, so IPs can stay nil
		IPs:  nil,
		Text: map[string]string{"desc": "UDP file courier"},
		Port: serviceInfo.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}
	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	return nil
}

// Discover browses for serviceType until ctx expires and returns every
// endpoint seen during the window.
func (m *MDNSAdapter) Discover(ctx context.Context, serviceType string) ([]ServiceInfo, error) {
	var (
		mu      sync.Mutex
		entries = make(map[string]ServiceInfo)
	)

	addFn := func(e dnssd.BrowseEntry) {
		if len(e.IPs) == 0 {
			return
		}
		mu.Lock()
		entries[fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)] = ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
			Addr:   e.IPs[0],
			Port:   e.Port,
		}
		mu.Unlock()
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(entries, fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain))
		mu.Unlock()
	}

	err := dnssd.LookupType(ctx, serviceType, addFn, rmvFn)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return nil, fmt.Errorf("mDNS lookup failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	found := make([]ServiceInfo, 0, len(entries))
	for _, entry := range entries {
		found = append(found, entry)
	}
	return found, nil
}
