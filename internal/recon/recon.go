// Package recon verifies a target's declared endpoint after ingestion: a
// quick nmap probe of the advertised port range, so operators learn whether
// the declared design is actually reachable before attack runs are queued.
package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/domain"
)

// PortState is one probed port and its observed state.
type PortState struct {
	Port  int
	State string
}

// Report summarizes one endpoint probe.
type Report struct {
	Target    string
	Reachable bool
	Ports     []PortState
}

// OpenCount returns the number of open ports observed.
func (r Report) OpenCount() int {
	n := 0
	for _, p := range r.Ports {
		if strings.HasPrefix(p.State, "open") {
			n++
		}
	}
	return n
}

// Prober runs endpoint verification scans.
type Prober struct {
	Timeout time.Duration
}

// Probe scans the target's declared port range. The target must carry
// endpoint info.
func (p Prober) Probe(ctx context.Context, t domain.Target) (Report, error) {
	if !t.HasEndpoint() {
		return Report{}, fmt.Errorf("target %s has no endpoint to probe", t.Name)
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.WithFields(log.Fields{
		"target": t.Name,
		"ip":     t.IP,
		"ports":  fmt.Sprintf("%d-%d", t.PortLow, t.PortHigh),
	}).Info("Probing target endpoint")

	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(t.IP),
		nmap.WithPorts(fmt.Sprintf("%d-%d", t.PortLow, t.PortHigh)),
		nmap.WithDisabledDNSResolution(),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return Report{}, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return Report{}, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.WithField("warnings", *warnings).Warn("Endpoint probe produced warnings")
	}

	report := Report{Target: t.Name}
	for _, h := range result.Hosts {
		if strings.ToLower(h.Status.State) == "up" {
			report.Reachable = true
		}
		for _, port := range h.Ports {
			report.Ports = append(report.Ports, PortState{
				Port:  int(port.ID),
				State: strings.ToLower(port.State.State),
			})
		}
	}

	log.WithFields(log.Fields{
		"target":    t.Name,
		"reachable": report.Reachable,
		"open":      report.OpenCount(),
	}).Info("Endpoint probe complete")
	return report, nil
}
