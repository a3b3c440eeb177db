package solana

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known program IDs
var (
	SystemProgramID     = solana.SystemProgramID
	TokenProgramID      = solana.TokenProgramID
	Token2022ProgramID  = solana.Token2022ProgramID
	MemoProgramIDSPL    = solana.MemoProgramID
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// SystemProgramTransferInstruction is the System Program Transfer discriminator.
const SystemProgramTransferInstruction = uint32(2)

// parseTransactionDetails builds TransactionDetails from a decoded
// transaction and its status meta. meta may be nil.
func parseTransactionDetails(slot uint64, blockTime *solana.UnixTimeSeconds, tx *solana.Transaction, meta *rpc.TransactionMeta) (*TransactionDetails, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is nil")
	}

	details := &TransactionDetails{
		Slot:            slot,
		RecentBlockhash: tx.Message.RecentBlockhash.String(),
	}
	if len(tx.Signatures) > 0 {
		details.Signature = tx.Signatures[0].String()
	}
	if blockTime != nil {
		ts := int64(*blockTime)
		details.BlockTime = &ts
	}

	keys, static, loadedWritable := resolveKeys(tx, meta)
	details.Accounts = accountKeys(tx, meta, keys, static, loadedWritable)

	if meta != nil {
		details.Fee = meta.Fee
		details.Err = meta.Err
		details.ComputeUnitsConsumed = meta.ComputeUnitsConsumed
		details.LogMessages = meta.LogMessages
		details.TokenTransfer = selectTokenTransfer(meta.PreTokenBalances, meta.PostTokenBalances)
	}

	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		programID := keys[ix.ProgramIDIndex]

		switch {
		case programID.Equals(SystemProgramID):
			if details.TransferLamports != 0 {
				continue
			}
			if amount, err := parseSystemTransfer(ix); err == nil {
				details.TransferLamports = amount
			}
		case programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy):
			memo := string(ix.Data)
			details.Memo = &memo
		}
	}

	return details, nil
}

// resolveKeys returns the static keys followed by any keys loaded from address
// lookup tables, the number of static keys, and how many loaded keys are writable.
func resolveKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) (keys solana.PublicKeySlice, static, loadedWritable int) {
	msg := tx.Message
	keys = append(keys, msg.AccountKeys...)
	if msg.IsResolved() {
		return keys, len(keys) - msg.NumLookups(), msg.NumWritableLookups()
	}
	static = len(keys)
	if meta != nil {
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
		loadedWritable = len(meta.LoadedAddresses.Writable)
	}
	return keys, static, loadedWritable
}

// accountKeys lists every account of the transaction with balances and role flags.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta, keys solana.PublicKeySlice, static, loadedWritable int) []AccountKey {
	msg := tx.Message
	programs := make(map[uint16]bool, len(msg.Instructions))
	for _, ix := range msg.Instructions {
		programs[ix.ProgramIDIndex] = true
	}

	h := msg.Header
	signers := int(h.NumRequiredSignatures)

	out := make([]AccountKey, len(keys))
	for i, key := range keys {
		ak := AccountKey{
			Index:    i,
			Address:  key.String(),
			FeePayer: i == 0,
			Signer:   i < signers,
			Program:  programs[uint16(i)],
			Lookup:   i >= static,
		}
		switch {
		case i < signers:
			ak.Writable = i < signers-int(h.NumReadonlySignedAccounts)
		case i < static:
			ak.Writable = i-signers < static-signers-int(h.NumReadonlyUnsignedAccounts)
		default:
			ak.Writable = i-static < loadedWritable
		}
		if meta != nil {
			if i < len(meta.PreBalances) {
				ak.PreBalance = meta.PreBalances[i]
			}
			if i < len(meta.PostBalances) {
				ak.PostBalance = meta.PostBalances[i]
			}
		}
		out[i] = ak
	}
	return out
}

// parseSystemTransfer extracts the lamports from a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction) (uint64, error) {
	// [0..4]  = instruction type (u32, 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return 0, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	return binary.LittleEndian.Uint64(instruction.Data[4:12]), nil
}

type tokenKey struct {
	index uint16
	mint  string
}

// selectTokenTransfer picks the token balance change to headline: the largest
// positive change, or the largest change of any sign if none is positive.
func selectTokenTransfer(pre, post []rpc.TokenBalance) *TokenTransfer {
	if len(post) == 0 {
		return nil
	}

	preAmounts := make(map[tokenKey]*big.Int, len(pre))
	for _, b := range pre {
		preAmounts[tokenKey{b.AccountIndex, b.Mint.String()}] = rawAmount(b.UiTokenAmount)
	}

	type row struct {
		key      tokenKey
		delta    *big.Int
		decimals uint8
	}
	rows := make([]row, 0, len(post))
	for _, b := range post {
		k := tokenKey{b.AccountIndex, b.Mint.String()}
		delta := new(big.Int).Set(rawAmount(b.UiTokenAmount))
		if before, ok := preAmounts[k]; ok {
			delta.Sub(delta, before)
		}
		if delta.Sign() == 0 {
			continue
		}
		var decimals uint8
		if b.UiTokenAmount != nil {
			decimals = b.UiTokenAmount.Decimals
		}
		rows = append(rows, row{key: k, delta: delta, decimals: decimals})
	}
	if len(rows) == 0 {
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return new(big.Int).Abs(rows[i].delta).Cmp(new(big.Int).Abs(rows[j].delta)) > 0
	})
	selected := rows[0]
	for _, r := range rows {
		if r.delta.Sign() > 0 {
			selected = r
			break
		}
	}

	return &TokenTransfer{
		Mint:         selected.key.mint,
		AccountIndex: int(selected.key.index),
		Amount:       new(big.Int).Abs(selected.delta),
		Decimals:     selected.decimals,
	}
}

func rawAmount(a *rpc.UiTokenAmount) *big.Int {
	n := new(big.Int)
	if a == nil {
		return n
	}
	if _, ok := n.SetString(a.Amount, 10); !ok {
		return new(big.Int)
	}
	return n
}

// signatureToInfo converts an RPC TransactionSignature to SignatureInfo.
func signatureToInfo(sig *rpc.TransactionSignature) SignatureInfo {
	info := SignatureInfo{
		Signature:          sig.Signature.String(),
		Slot:               sig.Slot,
		Err:                sig.Err,
		Memo:               sig.Memo,
		ConfirmationStatus: string(sig.ConfirmationStatus),
	}
	if sig.BlockTime != nil {
		ts := int64(*sig.BlockTime)
		info.BlockTime = &ts
	}
	return info
}
