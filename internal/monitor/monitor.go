// Package monitor checks known hosts with their configured check method
// and confirms offline transitions before they are committed.
package monitor

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/util"
)

// invalidTimeoutFallback applies when a host's misc timeout is present but
// not a positive number of seconds.
const invalidTimeoutFallback = 2 * time.Second

// Prober performs single probes. It is implemented by probes.NetworkScanner.
type Prober interface {
	Ping(ctx context.Context, host string, timeout time.Duration) model.ScanResult
	CheckPort(ctx context.Context, ip string, port int, protocol model.Protocol, timeout time.Duration) model.ScanResult
}

// HostsScanner runs checks for known hosts, one at a time.
type HostsScanner struct {
	// PortTimeout, when set, replaces the default timeout for PORT hosts.
	PortTimeout time.Duration

	prober         Prober
	defaultTimeout time.Duration
	retryDelay     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewHostsScanner creates a scanner using defaultTimeout for hosts without
// an override and waiting retryDelay between confirmation probes.
func NewHostsScanner(p Prober, defaultTimeout, retryDelay time.Duration) *HostsScanner {
	return &HostsScanner{
		prober:         p,
		defaultTimeout: defaultTimeout,
		retryDelay:     retryDelay,
		sleep:          sleepContext,
	}
}

// ScanHosts probes every host: one result for PING hosts and one per
// configured port for PORT hosts. Results carry the host ID.
func (s *HostsScanner) ScanHosts(ctx context.Context, hosts []model.Host) []model.ScanResult {
	var results []model.ScanResult
	for _, h := range hosts {
		if ctx.Err() != nil {
			break
		}
		timeout := s.HostTimeout(h)

		switch h.CheckMethod {
		case model.CheckPort:
			if len(h.Ports) == 0 {
				util.Warn("Host %s uses PORT checks but has no ports configured", h.IP)
				continue
			}
			for _, p := range h.Ports {
				r := s.prober.CheckPort(ctx, h.IP, p.Port, p.Protocol, timeout)
				r.HostID = h.ID
				r.Timeout = timeout
				results = append(results, r)
			}
		default:
			r := s.prober.Ping(ctx, h.IP, timeout)
			r.HostID = h.ID
			r.Timeout = timeout
			results = append(results, r)
		}
	}
	return results
}

// HostTimeout returns the effective probe timeout for h. A "timeout" key in
// the host's misc JSON, in seconds, overrides the default.
func (s *HostsScanner) HostTimeout(h model.Host) time.Duration {
	def := s.defaultTimeout
	if h.CheckMethod == model.CheckPort && s.PortTimeout > 0 {
		def = s.PortTimeout
	}
	if h.Misc == "" {
		return def
	}
	v := gjson.Get(h.Misc, "timeout")
	if !v.Exists() {
		return def
	}
	secs := v.Float()
	if (v.Type != gjson.Number && v.Type != gjson.String) || secs <= 0 {
		util.Warn("Host %s has invalid timeout %q, using %s", h.IP, v.Raw, invalidTimeoutFallback)
		return invalidTimeoutFallback
	}
	return time.Duration(secs * float64(time.Second))
}

// RetryScan re-probes every result marked as an online to offline change,
// up to maxRetries times. A single success restores the result to online
// and clears the change; only maxRetries consecutive failures confirm it.
func (s *HostsScanner) RetryScan(ctx context.Context, results []model.ScanResult, maxRetries int) []model.ScanResult {
	for i := range results {
		r := &results[i]
		if !r.Change || r.Online {
			continue
		}

		d := newDebounce(maxRetries)
		for d.pending() {
			if err := s.sleep(ctx, s.retryDelay); err != nil {
				break
			}
			retry := s.reprobe(ctx, *r)
			d.observe(retry.Online)
			r.Retries = d.retries
			if retry.Online {
				r.Online = true
				r.Change = false
				r.LatencyMs = retry.LatencyMs
				r.Error = ""
				r.Timestamp = retry.Timestamp
			}
		}

		if r.Online {
			util.Info("Host %s recovered after %d retries", r.IP, r.Retries)
		} else {
			util.Debug("Host %s offline confirmed after %d retries", r.IP, r.Retries)
		}
	}
	return results
}

func (s *HostsScanner) reprobe(ctx context.Context, r model.ScanResult) model.ScanResult {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if r.CheckMethod == model.CheckPort {
		return s.prober.CheckPort(ctx, r.IP, r.Port, r.Protocol, timeout)
	}
	return s.prober.Ping(ctx, r.IP, timeout)
}

// MarkChanges flags results whose state differs from the stored state of
// their host (PING) or port (PORT).
func MarkChanges(hosts []model.Host, results []model.ScanResult) {
	byID := make(map[int64]model.Host, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}

	for i := range results {
		r := &results[i]
		h, ok := byID[r.HostID]
		if !ok {
			continue
		}
		previous := h.Online
		if r.CheckMethod == model.CheckPort {
			for _, p := range h.Ports {
				if p.Port == r.Port && p.Protocol == r.Protocol {
					previous = p.Online
					break
				}
			}
		}
		r.Change = previous != r.Online
	}
}

// HostOnline reports whether any result belonging to hostID is online.
func HostOnline(hostID int64, results []model.ScanResult) bool {
	for _, r := range results {
		if r.HostID == hostID && r.Online {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
