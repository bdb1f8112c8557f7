package domain

import "strings"

// Source describes one monitored liquidity program or watched wallet.
type Source struct {
	Name    string // display name, also the cursor key
	Address string // program id or wallet polled for signatures

	// Wallet marks a watched wallet. Wallet sources only yield trades and
	// carry no markers.
	Wallet bool

	// Markers are substrings of instruction log lines that identify a
	// pool or token creation. Any single match is enough.
	Markers []string

	// LogPatterns are regular expressions evaluated with the same OR
	// semantics as Markers.
	LogPatterns []string
}

// String returns the display name of the source.
func (s Source) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Address
}

// HasMarker reports whether line contains one of the source markers.
func (s Source) HasMarker(line string) bool {
	for _, m := range s.Markers {
		if m != "" && strings.Contains(line, m) {
			return true
		}
	}
	return false
}
