package explorer

import (
	"encoding/json"
	"fmt"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/solana"
)

// ErrorReason describes why a transaction failed. Link is set when the
// reason points at an account page.
type ErrorReason struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// TransactionErrorReason turns a raw transaction error payload into display
// text. details may be nil when the transaction body is not known. Links keep
// the cluster selection.
func TransactionErrorReason(txErr any, details *solana.TransactionDetails, sel cluster.Selection) *ErrorReason {
	if txErr == nil {
		return nil
	}

	if s, ok := txErr.(string); ok {
		return &ErrorReason{Text: `Runtime Error: "` + s + `"`}
	}

	obj, _ := txErr.(map[string]any)

	if ix, ok := obj["InstructionError"].([]any); ok && len(ix) > 0 {
		if index, ok := toIndex(ix[0]); ok {
			return &ErrorReason{Text: fmt.Sprintf("Program Error: \"Instruction #%d Failed\"", index+1)}
		}
	}

	if rent, ok := obj["InsufficientFundsForRent"].(map[string]any); ok {
		if index, ok := toIndex(rent["account_index"]); ok {
			if details != nil && index < len(details.Accounts) {
				address := details.Accounts[index].Address
				return &ErrorReason{
					Text: "Insufficient Funds For Rent: " + address,
					Link: sel.Link("/address/" + address),
				}
			}
			return &ErrorReason{Text: fmt.Sprintf("Insufficient Funds For Rent: Account #%d", index+1)}
		}
	}

	raw, err := json.Marshal(txErr)
	if err != nil {
		raw = []byte(fmt.Sprint(txErr))
	}
	return &ErrorReason{Text: `Unknown Error: "` + string(raw) + `"`}
}

func toIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil && i >= 0
	default:
		return 0, false
	}
}
