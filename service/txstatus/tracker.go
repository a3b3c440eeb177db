package txstatus

// Tracker is the pure state machine behind a status view. It has a single
// owner and never starts goroutines or timers.
//
// Every fetch gets a sequence number from Begin. A result is applied only if
// no newer result has been applied already, so a slow response that lands
// after a fresher one is dropped.
type Tracker struct {
	bailout int
	visible bool
	retries int
	status  *Status

	issued  uint64
	applied uint64
}

// NewTracker returns a visible tracker with no status. A bailout below 1 uses
// ZeroConfirmationBailout.
func NewTracker(bailout int) *Tracker {
	if bailout < 1 {
		bailout = ZeroConfirmationBailout
	}
	return &Tracker{bailout: bailout, visible: true}
}

// Begin marks a fetch as in flight and returns its sequence number. Starting a
// fetch while bailed out resets the zero-confirmation counter.
func (t *Tracker) Begin() uint64 {
	if t.Mode() == BailedOut {
		t.retries = 0
	}
	t.issued++
	var info *StatusInfo
	if t.status != nil {
		info = t.status.Info
	}
	t.status = &Status{FetchStatus: Fetching, Info: info}
	return t.issued
}

// Complete applies a successful fetch. info is nil when the signature is not
// found. It reports false if the result was stale and ignored.
func (t *Tracker) Complete(seq uint64, info *StatusInfo) bool {
	if !t.accept(seq) {
		return false
	}
	t.status = &Status{FetchStatus: Fetched, Info: info}
	if info != nil && info.Confirmations.IsZero() {
		t.retries++
	}
	return true
}

// Fail applies a failed fetch. The last known info is kept and the
// zero-confirmation counter is left alone.
func (t *Tracker) Fail(seq uint64, err error) bool {
	if !t.accept(seq) {
		return false
	}
	var info *StatusInfo
	if t.status != nil {
		info = t.status.Info
	}
	t.status = &Status{FetchStatus: FetchFailed, Info: info, Err: err}
	return true
}

func (t *Tracker) accept(seq uint64) bool {
	if seq == 0 || seq > t.issued || seq <= t.applied {
		return false
	}
	t.applied = seq
	return true
}

// SetVisible records whether the view is being looked at.
func (t *Tracker) SetVisible(visible bool) {
	t.visible = visible
}

// Visible reports the current visibility.
func (t *Tracker) Visible() bool {
	return t.visible
}

// Mode derives the current auto-refresh mode.
func (t *Tracker) Mode() Mode {
	return computeMode(t.visible, t.retries, t.bailout, t.status)
}

// Retries returns the consecutive zero-confirmation count.
func (t *Tracker) Retries() int {
	return t.retries
}

// Status returns the latest status, nil before the first fetch.
func (t *Tracker) Status() *Status {
	return t.status
}

// InFlight reports whether an issued fetch has not been applied yet.
func (t *Tracker) InFlight() bool {
	return t.issued > t.applied
}

// Snapshot copies the tracker state for signature.
func (t *Tracker) Snapshot(signature string) Snapshot {
	snap := Snapshot{
		Signature:               signature,
		Mode:                    t.Mode(),
		ZeroConfirmationRetries: t.retries,
		Visible:                 t.visible,
	}
	if t.status != nil {
		snap.FetchStatus = t.status.FetchStatus
		if t.status.Info != nil {
			info := *t.status.Info
			snap.Info = &info
		}
		if t.status.Err != nil {
			snap.Error = t.status.Err.Error()
		}
	}
	return snap
}
