package amount

import (
	"math"
	"math/big"
	"regexp"
	"strings"
)

// The ledger historically recorded every asset at a generic 24-decimal scale.
// Assets whose native chain uses 8 decimals (BTC, ZEC) created before the
// unit-scale fix therefore carry amounts inflated by 10^16.
const (
	ledgerDecimals = 24
	utxoDecimals   = 8
)

var legacyScaleFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(ledgerDecimals-utxoDecimals), nil)

var scientificPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?e\+?(\d+)$`)

var digitsPattern = regexp.MustCompile(`^\d+$`)

// AtomicDecimals returns the native decimal precision for the given provider
// asset identifier. UTXO-chain assets settle at 8 decimals; everything else is
// assumed to already use the ledger's generic scale.
func AtomicDecimals(assetID string) int {
	normalized := strings.ToLower(strings.TrimSpace(assetID))
	if strings.Contains(normalized, "btc") || strings.Contains(normalized, "zec") {
		return utxoDecimals
	}
	return ledgerDecimals
}

// ExpandScientific converts a non-negative scientific-notation literal such as
// "1.23e+5" into a plain integer digit string by shifting the decimal point.
// Inputs that do not match the pattern, including negative exponents, yield "0".
func ExpandScientific(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	match := scientificPattern.FindStringSubmatch(normalized)
	if match == nil {
		return "0"
	}
	intPart := match[1]
	fraction := match[2]
	exponent := 0
	for _, r := range match[3] {
		exponent = exponent*10 + int(r-'0')
		if exponent > 1_000_000 {
			return "0"
		}
	}
	if fraction == "" {
		return intPart + strings.Repeat("0", exponent)
	}
	if exponent >= len(fraction) {
		return intPart + fraction + strings.Repeat("0", exponent-len(fraction))
	}
	// Digits past the shifted point are truncated, not rounded.
	return intPart + fraction[:exponent]
}

// Normalize maps a textual amount to a canonical integer digit string. Plain
// digit strings pass through, scientific notation is expanded, and anything
// else (negatives, fractions, garbage) collapses to "0".
func Normalize(value string) string {
	trimmed := strings.TrimSpace(value)
	if digitsPattern.MatchString(trimmed) {
		return trimmed
	}
	if scientificPattern.MatchString(strings.ToLower(trimmed)) {
		expanded := ExpandScientific(trimmed)
		if digitsPattern.MatchString(expanded) {
			return expanded
		}
	}
	return "0"
}

// NormalizeUint64 renders a whole count as a digit string.
func NormalizeUint64(value uint64) string {
	return new(big.Int).SetUint64(value).String()
}

// NormalizeFloat truncates a finite non-negative float to its integer digit
// sequence. Negative, NaN, and infinite values yield "0".
func NormalizeFloat(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "0"
	}
	truncated, _ := new(big.Float).SetFloat64(value).Int(nil)
	if truncated == nil || truncated.Sign() < 0 {
		return "0"
	}
	return truncated.String()
}

// PickPositive returns the first strictly positive candidate in priority
// order, or "0" when every candidate is zero or unparseable.
func PickPositive(candidates ...string) string {
	for _, candidate := range candidates {
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(candidate), 10)
		if !ok {
			continue
		}
		if parsed.Sign() > 0 {
			return strings.TrimSpace(candidate)
		}
	}
	return "0"
}

// NormalizeForAsset normalizes a raw amount and applies the legacy-scale
// correction for 8-decimal assets recorded at the ledger's 24-decimal scale.
// The correction only fires on exact multiples of 10^16 at or above 10^16, so
// already-correct amounts are never rescaled. The second return reports
// whether the correction was applied.
func NormalizeForAsset(raw, assetID string) (string, bool) {
	normalized := Normalize(raw)
	if AtomicDecimals(assetID) != utxoDecimals {
		return normalized, false
	}
	value, ok := new(big.Int).SetString(normalized, 10)
	if !ok {
		return "0", false
	}
	if value.Cmp(legacyScaleFactor) < 0 {
		return normalized, false
	}
	quotient, remainder := new(big.Int).QuoRem(value, legacyScaleFactor, new(big.Int))
	if remainder.Sign() != 0 {
		return normalized, false
	}
	return quotient.String(), true
}

// IsLargeMismatch reports whether one amount exceeds five times the other.
// It is a coarse sanity check, deliberately loose enough that fee and rounding
// differences never trip it. Unparseable inputs never count as a mismatch.
func IsLargeMismatch(expected, actual string) bool {
	a, okA := new(big.Int).SetString(strings.TrimSpace(expected), 10)
	b, okB := new(big.Int).SetString(strings.TrimSpace(actual), 10)
	if !okA || !okB {
		return false
	}
	if a.Sign() <= 0 || b.Sign() <= 0 {
		return false
	}
	five := big.NewInt(5)
	if a.Cmp(new(big.Int).Mul(b, five)) > 0 {
		return true
	}
	return b.Cmp(new(big.Int).Mul(a, five)) > 0
}
