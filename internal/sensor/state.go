package sensor

import "fmt"

// State is the connection lifecycle state of a Client.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateReadingOrSubscribing
	StateReceiving
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                       "Idle",
	StateScanning:                   "Scanning",
	StateConnecting:                 "Connecting",
	StateConnected:                  "Connected",
	StateDiscoveringServices:        "DiscoveringServices",
	StateDiscoveringCharacteristics: "DiscoveringCharacteristics",
	StateReadingOrSubscribing:       "ReadingOrSubscribing",
	StateReceiving:                  "Receiving",
	StateFailed:                     "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Active reports whether the client is somewhere between Scanning and Receiving.
func (s State) Active() bool {
	return s >= StateScanning && s <= StateReceiving
}

// Linked reports whether a connection to the peripheral is established.
func (s State) Linked() bool {
	return s >= StateConnected && s <= StateReceiving
}

// Status is the human-readable client status together with the state it
// describes. Err holds the failure reason in StateFailed, or the last decode
// error while receiving.
type Status struct {
	State   State
	Message string
	Err     error
}

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", s.State, s.Message, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.State, s.Message)
}
