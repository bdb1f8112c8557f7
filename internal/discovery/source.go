package discovery

import (
	"fmt"
	"regexp"

	"solana-wallet-ledger/internal/domain"
)

// EventSource is a monitored program with compiled creation matchers.
type EventSource struct {
	domain.Source
	patterns []*regexp.Regexp
}

// WalletSourcePrefix prefixes the source name, and so the cursor key, of
// watched wallet sources.
const WalletSourcePrefix = "wallet:"

// NewEventSource validates src and compiles its log patterns.
func NewEventSource(src domain.Source) (*EventSource, error) {
	if !IsValidAddress(src.Address) {
		return nil, fmt.Errorf("source %q: invalid program address %q", src.Name, src.Address)
	}
	switch {
	case src.Wallet && (len(src.Markers) > 0 || len(src.LogPatterns) > 0):
		return nil, fmt.Errorf("source %q: wallet sources take no markers", src.Name)
	case !src.Wallet && len(src.Markers) == 0 && len(src.LogPatterns) == 0:
		return nil, fmt.Errorf("source %q: no markers or log patterns", src.Name)
	}

	s := &EventSource{Source: src}
	for _, p := range src.LogPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("source %q: compile pattern %q: %w", src.Name, p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// NewWalletSource builds the source that polls the signatures of one wallet.
// It never matches creations, so only trades on registered tokens are recorded.
func NewWalletSource(address string) (*EventSource, error) {
	return NewEventSource(domain.Source{
		Name:    WalletSourcePrefix + address,
		Address: address,
		Wallet:  true,
	})
}

// MatchesCreation reports whether any log line carries a creation marker
// or matches a creation pattern.
func (s *EventSource) MatchesCreation(logs []string) bool {
	if s.Wallet {
		return false
	}
	for _, line := range logs {
		if s.HasMarker(line) {
			return true
		}
		for _, re := range s.patterns {
			if re.MatchString(line) {
				return true
			}
		}
	}
	return false
}
