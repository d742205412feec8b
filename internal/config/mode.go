package config

// TargetMode decides where an inbound connection is relayed to
type TargetMode string

const (
	// ModeStatic relays every connection to one configured target
	ModeStatic TargetMode = "static"

	// ModeConnect reads an HTTP CONNECT (or proxy-form) request to find the target
	ModeConnect TargetMode = "connect"
)

// IsValid checks if the mode is valid
func (m TargetMode) IsValid() bool {
	return m == ModeStatic || m == ModeConnect
}

// String returns the string representation
func (m TargetMode) String() string {
	return string(m)
}
