package domain

import (
	"fmt"
	"strings"
	"time"
)

// Target is one competitor's submitted design package plus its last known
// network endpoint. The name is the unique key, case-normalized.
type Target struct {
	Name     string `json:"name"`
	IP       string `json:"ip,omitempty"`
	PortLow  int    `json:"port_low,omitempty"`
	PortHigh int    `json:"port_high,omitempty"`

	// StoragePath is the target's directory under the synchronized repo root.
	StoragePath string    `json:"storage_path,omitempty"`
	FirstSeen   time.Time `json:"first_seen,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// NormalizeName maps a raw target name to its unique key form.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasEndpoint reports whether the target carries usable endpoint info.
func (t Target) HasEndpoint() bool {
	return t.IP != "" && t.PortLow > 0 && t.PortHigh >= t.PortLow
}

func (t Target) String() string {
	if !t.HasEndpoint() {
		return t.Name
	}
	return fmt.Sprintf("%s@%s:%d-%d", t.Name, t.IP, t.PortLow, t.PortHigh)
}

// AttackMethod selects the attack-executor entry point.
type AttackMethod string

const (
	MethodAttackTarget AttackMethod = "attack-target"
	MethodAttackScript AttackMethod = "attack-script"
)

// FlagMatch is one flag candidate extracted from an attack-executor line.
// Produced per matched line and consumed immediately by submission.
type FlagMatch struct {
	Raw            string
	ScenarioPrefix string
	Team           string
}

// PackageEvent is one inbound "new or updated package" notification from
// the external message source.
type PackageEvent struct {
	// FileName is the attached package filename, empty if no package.
	FileName string `json:"file_name,omitempty"`
	// Text is free-form text accompanying the event; endpoint info and, when
	// no package is attached, the target name are parsed from it.
	Text string `json:"text,omitempty"`
	// PackageURL points the extraction service at the package payload.
	PackageURL string `json:"package_url,omitempty"`
}

// HasPackage reports whether this event carries a design package.
func (e PackageEvent) HasPackage() bool {
	return e.FileName != "" || e.PackageURL != ""
}
