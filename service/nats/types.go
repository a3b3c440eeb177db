package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/roxscan/service/txstatus"
)

// TxStatusEvent is a status snapshot published to NATS.
// It goes to the subject "txstatus.{signature}" in JetStream.
type TxStatusEvent struct {
	Signature string `json:"signature"`
	Cluster   string `json:"cluster"`

	// Status as last fetched
	FetchStatus        string `json:"fetch_status"`
	Found              bool   `json:"found"`
	Slot               uint64 `json:"slot,omitempty"`
	Confirmations      string `json:"confirmations,omitempty"`
	ConfirmationStatus string `json:"confirmation_status,omitempty"`
	Finalized          bool   `json:"finalized"`
	Err                any    `json:"err,omitempty"`
	BlockTime          *int64 `json:"block_time,omitempty"`
	Error              string `json:"error,omitempty"`

	// Poller state
	Mode                    string `json:"mode"`
	ZeroConfirmationRetries int    `json:"zero_confirmation_retries"`

	// Timing information
	UpdatedAt   time.Time `json:"updated_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject events for signature are published on.
func Subject(signature string) string {
	return fmt.Sprintf("txstatus.%s", signature)
}

// FromSnapshot converts a poller snapshot into an event for publishing.
func FromSnapshot(clusterSlug string, snap txstatus.Snapshot) *TxStatusEvent {
	event := &TxStatusEvent{
		Signature:               snap.Signature,
		Cluster:                 clusterSlug,
		FetchStatus:             snap.FetchStatus.String(),
		Error:                   snap.Error,
		Mode:                    snap.Mode.String(),
		ZeroConfirmationRetries: snap.ZeroConfirmationRetries,
		UpdatedAt:               snap.UpdatedAt,
		PublishedAt:             time.Now().UTC(),
	}

	if info := snap.Info; info != nil {
		event.Found = true
		event.Slot = info.Slot
		event.Confirmations = info.Confirmations.String()
		event.ConfirmationStatus = info.ConfirmationStatus
		event.Finalized = info.Finalized()
		event.Err = info.Err
		event.BlockTime = info.Timestamp
	}

	return event
}

// DecodeEvent parses a message payload.
func DecodeEvent(data []byte) (*TxStatusEvent, error) {
	var event TxStatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode status event: %w", err)
	}
	if event.Signature == "" {
		return nil, fmt.Errorf("failed to decode status event: missing signature")
	}
	return &event, nil
}
