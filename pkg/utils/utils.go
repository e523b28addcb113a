package utils

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the decimal convention of the native currency.
const EtherDecimals = 18

// TruncateString shortens str to at most num runes, marking the cut with "...".
func TruncateString(str string, num int) string {
	runes := []rune(str)
	if len(runes) <= num {
		return str
	}
	if num <= 3 {
		return string(runes[:num])
	}
	return string(runes[:num-3]) + "..."
}

// AddCommas groups the integer digits of a decimal string in thousands.
func AddCommas(s string) string {
	sign, rest := "", s
	if strings.HasPrefix(rest, "-") {
		sign, rest = "-", rest[1:]
	}
	integer, fraction, hasFraction := strings.Cut(rest, ".")
	if len(integer) <= 3 {
		return s
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, d := range integer {
		if i > 0 && (len(integer)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFraction {
		b.WriteByte('.')
		b.WriteString(fraction)
	}
	return b.String()
}

// FormatUnits scales an amount in smallest units by 10^decimals and rounds it to places fractional digits.
func FormatUnits(amount *big.Int, decimals int, places int32) string {
	if amount == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(places)
}

// FormatEther formats a wei amount as ETH.
func FormatEther(wei *big.Int, places int32) string {
	return FormatUnits(wei, EtherDecimals, places)
}
