package types

import (
	"fmt"
	"time"
)

// Signal source categories
const (
	SourceNetflow     = "network-flow"
	SourceEndpoint    = "endpoint-alert"
	SourceThreatIntel = "threat-intel"
	SourceSIEM        = "siem"
	SourceDNS         = "dns"
)

// Signal is a single piece of evidence feeding correlation.
// Severity is a weight in [0,1]; Entities is the set of hosts,
// IPs or accounts the signal touches.
type Signal struct {
	EvidenceID string    `json:"evidence_id"`
	Source     string    `json:"source"`
	Severity   float64   `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
	Entities   []string  `json:"entities"`
}

// Validate ensures the signal has required fields
func (s *Signal) Validate() error {
	if s.EvidenceID == "" {
		return fmt.Errorf("%w: signal evidence id cannot be empty", ErrValidation)
	}
	if s.Source == "" {
		return fmt.Errorf("%w: signal source cannot be empty", ErrValidation)
	}
	if s.Severity < 0.0 || s.Severity > 1.0 {
		return fmt.Errorf("%w: signal severity %.2f outside [0.0, 1.0]", ErrValidation, s.Severity)
	}
	return nil
}

// Touches checks if the signal's entity set contains the target
func (s *Signal) Touches(target string) bool {
	for _, e := range s.Entities {
		if e == target {
			return true
		}
	}
	return false
}
