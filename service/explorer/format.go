package explorer

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// NativeSymbol is the ticker shown next to native balances.
const NativeSymbol = "ROX"

const (
	lamportDecimals = 9
	timestampLayout = "Jan 2, 2006 at 15:04:05 MST"
)

var pow10Table = [...]uint64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000, 1_000_000_000,
}

// LamportsToSOLString renders lamports in whole tokens with thousands
// separators, rounded to at most maxFraction decimals with trailing zeros
// trimmed.
func LamportsToSOLString(lamports uint64, maxFraction int) string {
	maxFraction = min(max(maxFraction, 0), lamportDecimals)

	scale := pow10Table[lamportDecimals-maxFraction]
	rounded := lamports / scale
	if (lamports%scale)*2 >= scale && scale > 1 {
		rounded++
	}

	unit := pow10Table[maxFraction]
	whole := groupDigits(strconv.FormatUint(rounded/unit, 10))
	frac := rounded % unit
	if frac == 0 {
		return whole
	}
	digits := strings.TrimRight(fmt.Sprintf("%0*d", maxFraction, frac), "0")
	return whole + "." + digits
}

// FormatDelta renders a signed lamport change, e.g. "+1.5" or "-0.000005".
func FormatDelta(delta int64) string {
	switch {
	case delta > 0:
		return "+" + LamportsToSOLString(uint64(delta), lamportDecimals)
	case delta < 0:
		return "-" + LamportsToSOLString(uint64(-delta), lamportDecimals)
	default:
		return "0"
	}
}

// FormatTokenAmount scales a raw token amount by decimals and shows at most
// nine fraction digits, zero padded.
func FormatTokenAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	n := new(big.Int).Abs(raw)
	shown := int(decimals)
	if shown > lamportDecimals {
		drop := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shown-lamportDecimals)), nil)
		half := new(big.Int).Rsh(drop, 1)
		n.Add(n, half).Quo(n, drop)
		shown = lamportDecimals
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shown)), nil)
	whole, frac := new(big.Int).QuoRem(n, unit, new(big.Int))
	out := groupDigits(whole.String())
	if shown == 0 {
		return out
	}
	digits := frac.String()
	return out + "." + strings.Repeat("0", shown-len(digits)) + digits
}

// FormatSlot renders a slot number with en-US digit grouping.
func FormatSlot(slot uint64) string {
	return groupDigits(strconv.FormatUint(slot, 10))
}

// FormatEpoch renders an epoch number with en-US digit grouping.
func FormatEpoch(epoch uint64) string {
	return groupDigits(strconv.FormatUint(epoch, 10))
}

// FormatCount renders any count with digit grouping.
func FormatCount(n uint64) string {
	return groupDigits(strconv.FormatUint(n, 10))
}

// FormatTimestamp renders unix seconds in UTC.
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(timestampLayout)
}

// ShortAddress abbreviates an address to its first and last four characters.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}

func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
