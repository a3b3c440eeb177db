package txstatus

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// AutoRefreshInterval is the period of the refetch timer while Active.
	AutoRefreshInterval = 2 * time.Second

	// ZeroConfirmationBailout is how many zero-confirmation results in a row
	// stop automatic refreshing.
	ZeroConfirmationBailout = 5
)

// FetchStatus is the state of the most recent status request.
type FetchStatus int

const (
	Fetching FetchStatus = iota
	Fetched
	FetchFailed
)

func (s FetchStatus) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Fetched:
		return "fetched"
	case FetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

func (s FetchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FetchStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "fetching":
		*s = Fetching
	case "fetched":
		*s = Fetched
	case "fetch_failed":
		*s = FetchFailed
	default:
		return fmt.Errorf("unknown fetch status %q", string(b))
	}
	return nil
}

// Confirmations is either a block count or Max once the transaction is
// finalized. It encodes to JSON as a number or the string "max".
type Confirmations struct {
	Count uint64
	Max   bool
}

// MaxConfirmations marks a finalized transaction.
func MaxConfirmations() Confirmations {
	return Confirmations{Max: true}
}

// ConfirmationCount wraps an explicit block count.
func ConfirmationCount(n uint64) Confirmations {
	return Confirmations{Count: n}
}

// IsZero reports a fetched status with no confirmations yet.
func (c Confirmations) IsZero() bool {
	return !c.Max && c.Count == 0
}

func (c Confirmations) String() string {
	if c.Max {
		return "max"
	}
	return fmt.Sprintf("%d", c.Count)
}

func (c Confirmations) MarshalJSON() ([]byte, error) {
	if c.Max {
		return []byte(`"max"`), nil
	}
	return json.Marshal(c.Count)
}

func (c *Confirmations) UnmarshalJSON(b []byte) error {
	if string(b) == `"max"` {
		*c = MaxConfirmations()
		return nil
	}
	var n uint64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("confirmations must be a number or \"max\": %w", err)
	}
	*c = ConfirmationCount(n)
	return nil
}

// StatusInfo is what the node reports about a signature.
type StatusInfo struct {
	Slot               uint64        `json:"slot"`
	Confirmations      Confirmations `json:"confirmations"`
	ConfirmationStatus string        `json:"confirmation_status,omitempty"`
	// Err is the raw transaction error payload, nil on success.
	Err any `json:"err,omitempty"`
	// Timestamp is the block time in unix seconds, nil when unavailable.
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// Finalized reports whether the transaction can no longer change.
func (i *StatusInfo) Finalized() bool {
	return i != nil && i.Confirmations.Max
}

// Status is the poller's view of a signature. A nil Info after a successful
// fetch means the signature is unknown to the node.
type Status struct {
	FetchStatus FetchStatus
	Info        *StatusInfo
	Err         error
}

// Mode is the auto-refresh mode derived from visibility, the
// zero-confirmation counter and the latest status.
type Mode int

const (
	Inactive Mode = iota
	Active
	BailedOut
)

func (m Mode) String() string {
	switch m {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case BailedOut:
		return "bailed_out"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*m = Active
	case "inactive":
		*m = Inactive
	case "bailed_out":
		*m = BailedOut
	default:
		return fmt.Errorf("unknown mode %q", string(b))
	}
	return nil
}

// ComputeMode derives the auto-refresh mode using the default bail-out
// ceiling. Visibility is checked first and always wins.
func ComputeMode(visible bool, zeroRetries int, last *Status) Mode {
	return computeMode(visible, zeroRetries, ZeroConfirmationBailout, last)
}

func computeMode(visible bool, zeroRetries, bailout int, last *Status) Mode {
	if !visible {
		return Inactive
	}
	if zeroRetries >= bailout {
		return BailedOut
	}
	if last != nil && last.Info != nil && !last.Info.Confirmations.Max {
		return Active
	}
	return Inactive
}

// Snapshot is an immutable copy of a view's state, published after every
// change.
type Snapshot struct {
	Signature               string      `json:"signature"`
	FetchStatus             FetchStatus `json:"fetch_status"`
	Info                    *StatusInfo `json:"info"`
	Error                   string      `json:"error,omitempty"`
	Mode                    Mode        `json:"mode"`
	ZeroConfirmationRetries int         `json:"zero_confirmation_retries"`
	Visible                 bool        `json:"visible"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// NotFound reports a completed fetch for a signature the node does not know.
func (s Snapshot) NotFound() bool {
	return s.FetchStatus == Fetched && s.Info == nil
}
