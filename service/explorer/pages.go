package explorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/solana"
	"golang.org/x/sync/errgroup"
)

// AddressPage is the model behind /address/{address}.
type AddressPage struct {
	Address   string
	Selection cluster.Selection
	Cluster   ClusterInfo
	Card      *Card

	Exists     bool
	Label      string
	Balance    string
	Owner      string
	OwnerLabel string
	OwnerLink  string
	Executable string
	Space      string

	Signatures     []SignatureRow
	SignaturesCard *Card
}

// SignatureRow is one entry of an address's recent history.
type SignatureRow struct {
	Signature string
	Link      string
	Slot      string
	Timestamp string
	Result    string
	Memo      string
}

// AddressPage builds the address view: the account overview plus its most
// recent signatures, fetched concurrently.
func (s *Service) AddressPage(ctx context.Context, address string) *AddressPage {
	page := &AddressPage{
		Address:   address,
		Selection: s.selection,
		Cluster:   ClusterInfo{Cluster: s.selection.Cluster, Name: s.selection.Cluster.Name()},
	}

	if _, err := solana.ParseAddress(address); err != nil {
		page.Card = &Card{Text: `Address "` + address + `" is not valid`}
		s.recordPage("address", "invalid")
		return page
	}

	page.Cluster = s.ClusterInfo(ctx)
	if page.Cluster.Status == cluster.Failure {
		page.Card = &Card{Text: rpcNotResponding}
		s.recordPage("address", "rpc_failure")
		return page
	}

	var (
		account    *solana.Account
		signatures []solana.SignatureInfo
		sigErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		acc, err := s.node.Account(gctx, address)
		if errors.Is(err, solana.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch account: %w", err)
		}
		account = acc
		return nil
	})
	g.Go(func() error {
		signatures, sigErr = s.node.RecentSignatures(gctx, address, solana.RecentSignaturesLimit)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "address fetch failed", "address", address, "error", err)
		page.Card = &Card{Text: "Failed to fetch account info", Retry: true}
		s.recordPage("address", "fetch_failed")
		return page
	}

	page.Label = AddressLabel(address)
	page.Balance = "Account does not exist"
	page.Executable = "No"
	if account != nil {
		page.Exists = account.Lamports > 0
		if page.Exists {
			page.Balance = LamportsToSOLString(account.Lamports, lamportDecimals)
		}
		page.Owner = account.Owner
		page.OwnerLabel = AddressLabel(account.Owner)
		page.OwnerLink = s.selection.Link("/address/" + account.Owner)
		page.Space = fmt.Sprintf("%s byte(s)", FormatCount(account.Space))
		if account.Executable {
			page.Executable = "Yes"
		}
	}

	if sigErr != nil {
		s.logger.WarnContext(ctx, "signature history fetch failed", "address", address, "error", sigErr)
		page.SignaturesCard = &Card{Text: "Failed to fetch transaction history", Retry: true}
	} else {
		page.Signatures = s.signatureRows(signatures)
		if len(page.Signatures) == 0 {
			page.SignaturesCard = &Card{Text: "No transaction history found"}
		}
	}

	if account == nil {
		s.recordPage("address", "not_found")
	} else {
		s.recordPage("address", "ok")
	}
	return page
}

func (s *Service) signatureRows(sigs []solana.SignatureInfo) []SignatureRow {
	rows := make([]SignatureRow, 0, len(sigs))
	for _, sig := range sigs {
		row := SignatureRow{
			Signature: sig.Signature,
			Link:      s.selection.Link("/tx/" + sig.Signature),
			Slot:      FormatSlot(sig.Slot),
			Timestamp: "Unavailable",
			Result:    "Success",
		}
		if sig.BlockTime != nil {
			row.Timestamp = FormatTimestamp(*sig.BlockTime)
		}
		if sig.Err != nil {
			row.Result = "Failed"
		}
		if sig.Memo != nil {
			row.Memo = *sig.Memo
		}
		rows = append(rows, row)
	}
	return rows
}

// SupplyPage is the model behind /supply.
type SupplyPage struct {
	Selection          cluster.Selection
	Card               *Card
	Total              string
	Circulating        string
	NonCirculating     string
	CirculatingPercent string
}

// SupplyPage builds the supply overview.
func (s *Service) SupplyPage(ctx context.Context) *SupplyPage {
	page := &SupplyPage{Selection: s.selection}

	supply, err := s.node.Supply(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "supply fetch failed", "error", err)
		page.Card = &Card{Text: "Failed to fetch supply info", Retry: true}
		s.recordPage("supply", "fetch_failed")
		return page
	}

	page.Total = LamportsToSOLString(supply.Total, 0)
	page.Circulating = LamportsToSOLString(supply.Circulating, 0)
	page.NonCirculating = LamportsToSOLString(supply.NonCirculating, 0)
	if supply.Total > 0 {
		page.CirculatingPercent = fmt.Sprintf("%.1f%%", float64(supply.Circulating)/float64(supply.Total)*100)
	}
	s.recordPage("supply", "ok")
	return page
}

// BlockhashesPage is the model behind /blockhashes.
type BlockhashesPage struct {
	Selection            cluster.Selection
	Card                 *Card
	Blockhash            string
	LastValidBlockHeight string
	Slot                 string
}

// RecentBlockhashes builds the latest blockhash view.
func (s *Service) RecentBlockhashes(ctx context.Context) *BlockhashesPage {
	page := &BlockhashesPage{Selection: s.selection}

	bh, err := s.node.LatestBlockhash(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "blockhash fetch failed", "error", err)
		page.Card = &Card{Text: "Failed to fetch recent blockhashes", Retry: true}
		s.recordPage("blockhashes", "fetch_failed")
		return page
	}

	page.Blockhash = bh.Blockhash
	page.LastValidBlockHeight = FormatCount(bh.LastValidBlockHeight)
	page.Slot = FormatSlot(bh.Slot)
	s.recordPage("blockhashes", "ok")
	return page
}
