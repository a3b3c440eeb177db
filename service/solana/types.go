package solana

import (
	"math/big"
)

// TransactionDetails is the parsed view of a confirmed transaction.
// This is our domain model, independent of the RPC response format.
type TransactionDetails struct {
	Signature            string
	Slot                 uint64
	BlockTime            *int64
	Fee                  uint64
	ComputeUnitsConsumed *uint64
	RecentBlockhash      string
	Err                  any // raw error payload, nil on success
	Accounts             []AccountKey
	// TransferLamports is the amount of the first System Program transfer, 0 if none.
	TransferLamports uint64
	// TokenTransfer is the most significant token balance change, nil if none.
	TokenTransfer *TokenTransfer
	// Memo is the text of the last memo instruction, nil if none.
	Memo        *string
	LogMessages []string
}

// AccountKey is one entry of a transaction's account list with its balance change.
type AccountKey struct {
	Index       int
	Address     string
	PreBalance  uint64
	PostBalance uint64
	FeePayer    bool
	Signer      bool
	Writable    bool
	Program     bool
	// Lookup marks an account loaded from an address lookup table.
	Lookup bool
}

// Delta returns the lamport change of the account.
func (a AccountKey) Delta() int64 {
	return int64(a.PostBalance) - int64(a.PreBalance)
}

// TokenTransfer is a token balance change selected from the pre/post token balances.
type TokenTransfer struct {
	Mint         string
	AccountIndex int
	// Amount is the absolute raw change, not scaled by Decimals.
	Amount   *big.Int
	Decimals uint8
}

// NodeInfo is what a cluster probe learns about the node.
type NodeInfo struct {
	Healthy             bool
	FirstAvailableBlock uint64
	Epoch               EpochInfo
}

// EpochInfo describes the current epoch.
type EpochInfo struct {
	Epoch            uint64
	SlotIndex        uint64
	SlotsInEpoch     uint64
	AbsoluteSlot     uint64
	BlockHeight      uint64
	TransactionCount *uint64
}

// Supply is the lamport supply of the cluster.
type Supply struct {
	Total          uint64
	Circulating    uint64
	NonCirculating uint64
}

// Account is the on-chain state of an address.
type Account struct {
	Address    string
	Lamports   uint64
	Owner      string
	Executable bool
	Space      uint64
}

// SignatureInfo is one entry in an address's transaction history.
type SignatureInfo struct {
	Signature          string
	Slot               uint64
	BlockTime          *int64
	Err                any
	Memo               *string
	ConfirmationStatus string
}

// Blockhash is the latest blockhash and the slot it was read at.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
	Slot                 uint64
}
