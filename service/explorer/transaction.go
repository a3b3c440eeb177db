package explorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/brojonat/roxscan/service/txstatus"
)

// breakdownRows is how many account keys the breakdown card lists.
const breakdownRows = 2

// TransactionPage is the model behind /tx/{signature}.
type TransactionPage struct {
	Raw       string
	Signature string // empty when Raw is not a valid signature
	Selection cluster.Selection
	Cluster   ClusterInfo

	// Card replaces the overview when the status cannot be shown.
	Card     *Card
	Overview *Overview

	// DetailsCard replaces the breakdown when details cannot be shown.
	DetailsCard *Card
	Accounts    []AccountRow
	LogMessages []string

	// Cached pages come from the finalized cache and never poll.
	Cached bool
	// Poll tells the view to attach a status poller.
	Poll bool
	Mode txstatus.Mode
}

// Overview is the status card of a transaction.
type Overview struct {
	Signature          string
	Success            bool
	Result             string
	ErrorReason        *ErrorReason
	Confirmations      string
	ConfirmationStatus string
	Finalized          bool
	TransferLabel      string
	TransferAmount     string
	Fee                string
	Timestamp          string
	Slot               string
	RecentBlockhash    string
	ComputeUnits       string
	Memo               string
}

// AccountRow is one line of the account breakdown.
type AccountRow struct {
	Number      int
	Address     string
	Label       string
	Link        string
	Delta       string
	Positive    bool
	Negative    bool
	PostBalance string
	Badges      []string
}

// TransactionPage builds the transaction view for raw. Invalid input and an
// unreachable node are reported without fetching the status.
func (s *Service) TransactionPage(ctx context.Context, raw string) *TransactionPage {
	page := &TransactionPage{
		Raw:       raw,
		Selection: s.selection,
		Cluster:   ClusterInfo{Cluster: s.selection.Cluster, Name: s.selection.Cluster.Name()},
	}

	if _, err := solana.ParseSignature(raw); err != nil {
		page.Card = &Card{Text: `Signature "` + raw + `" is not valid`}
		s.recordPage("tx", "invalid")
		return page
	}
	page.Signature = raw

	if cached := s.lookupCache(ctx, raw); cached != nil {
		page.Cached = true
		page.Overview = buildOverview(raw, cached.Status, cached.Details, s.selection)
		page.fillDetails(cached.Details, s.selection)
		s.recordPage("tx", "cached")
		return page
	}

	page.Cluster = s.ClusterInfo(ctx)
	if page.Cluster.Status == cluster.Failure {
		page.Card = &Card{Text: rpcNotResponding}
		s.recordPage("tx", "rpc_failure")
		return page
	}
	page.Poll = true

	tracker := txstatus.NewTracker(0)
	seq := tracker.Begin()
	info, err := s.node.FetchStatus(ctx, raw)
	if err != nil {
		tracker.Fail(seq, err)
	} else {
		tracker.Complete(seq, info)
	}
	page.Mode = tracker.Mode()

	status := tracker.Status()
	switch {
	case status.FetchStatus == txstatus.FetchFailed:
		s.logger.WarnContext(ctx, "transaction status fetch failed", "signature", raw, "error", status.Err)
		page.Card = &Card{Text: "Fetch Failed", Retry: true}
		s.recordPage("tx", "fetch_failed")
		return page
	case status.Info == nil:
		page.Card = &Card{Text: "Not Found", Retry: true}
		if n := page.Cluster.FirstAvailableBlock; n > 0 {
			page.Card.Subtext = fmt.Sprintf("Note: Transactions processed before block %d are not available at this time", n)
		}
		s.recordPage("tx", "not_found")
		return page
	}

	details, err := s.node.TransactionDetails(ctx, raw)
	switch {
	case errors.Is(err, solana.ErrNotFound):
		page.DetailsCard = &Card{Text: "Details are not available"}
		details = nil
	case err != nil:
		s.logger.WarnContext(ctx, "transaction details fetch failed", "signature", raw, "error", err)
		page.DetailsCard = &Card{Text: "Failed to fetch details", Retry: true}
		details = nil
	}

	page.Overview = buildOverview(raw, status.Info, details, s.selection)
	page.fillDetails(details, s.selection)
	s.storeCache(ctx, raw, status.Info, details)
	s.recordPage("tx", "ok")
	return page
}

func (p *TransactionPage) fillDetails(details *solana.TransactionDetails, sel cluster.Selection) {
	if details == nil {
		if p.DetailsCard == nil {
			p.DetailsCard = &Card{Text: "Details are not available"}
		}
		return
	}
	p.Accounts = accountRows(details, sel)
	p.LogMessages = details.LogMessages
}

func buildOverview(signature string, info *txstatus.StatusInfo, details *solana.TransactionDetails, sel cluster.Selection) *Overview {
	ov := &Overview{
		Signature:          signature,
		Success:            info.Err == nil,
		Result:             "Success",
		Confirmations:      info.Confirmations.String(),
		ConfirmationStatus: info.ConfirmationStatus,
		Finalized:          info.Finalized(),
		Slot:               FormatSlot(info.Slot),
		Timestamp:          "Unavailable",
		TransferLabel:      fmt.Sprintf("Transfer Amount (%s)", NativeSymbol),
		TransferAmount:     LamportsToSOLString(0, lamportDecimals),
	}
	if info.Err != nil {
		ov.Result = "Error"
		ov.ErrorReason = TransactionErrorReason(info.Err, details, sel)
	}

	switch {
	case info.Timestamp != nil:
		ov.Timestamp = FormatTimestamp(*info.Timestamp)
	case details != nil && details.BlockTime != nil:
		ov.Timestamp = FormatTimestamp(*details.BlockTime)
	}

	if details == nil {
		return ov
	}

	if tt := details.TokenTransfer; tt != nil {
		symbol := AddressLabel(tt.Mint)
		if symbol == "" {
			symbol = ShortAddress(tt.Mint)
		}
		ov.TransferLabel = fmt.Sprintf("Transfer Amount (%s)", symbol)
		ov.TransferAmount = FormatTokenAmount(tt.Amount, tt.Decimals)
	} else {
		ov.TransferAmount = LamportsToSOLString(details.TransferLamports, lamportDecimals)
	}
	ov.Fee = LamportsToSOLString(details.Fee, lamportDecimals)
	ov.RecentBlockhash = details.RecentBlockhash
	if details.ComputeUnitsConsumed != nil {
		ov.ComputeUnits = FormatCount(*details.ComputeUnitsConsumed)
	}
	if details.Memo != nil {
		ov.Memo = *details.Memo
	}
	return ov
}

func accountRows(details *solana.TransactionDetails, sel cluster.Selection) []AccountRow {
	n := min(len(details.Accounts), breakdownRows)
	rows := make([]AccountRow, 0, n)
	for _, acc := range details.Accounts[:n] {
		delta := acc.Delta()
		row := AccountRow{
			Number:      acc.Index + 1,
			Address:     acc.Address,
			Label:       AddressLabel(acc.Address),
			Link:        sel.Link("/address/" + acc.Address),
			Delta:       FormatDelta(delta),
			Positive:    delta > 0,
			Negative:    delta < 0,
			PostBalance: LamportsToSOLString(acc.PostBalance, lamportDecimals),
		}
		if acc.FeePayer {
			row.Badges = append(row.Badges, "Fee Payer")
		}
		if acc.Signer {
			row.Badges = append(row.Badges, "Signer")
		}
		if acc.Writable {
			row.Badges = append(row.Badges, "Writable")
		}
		if acc.Program {
			row.Badges = append(row.Badges, "Program")
		}
		if acc.Lookup {
			row.Badges = append(row.Badges, "Address Table Lookup")
		}
		rows = append(rows, row)
	}
	return rows
}
