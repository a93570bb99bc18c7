package amount

import (
	"math"
	"testing"
)

func TestExpandScientific(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.5e+3", "1500"},
		{"123e+0", "123"},
		{"1.23e+5", "123000"},
		{"1.234e+2", "123"},
		{"2e8", "200000000"},
		{"1.5E+3", "1500"},
		{"", "0"},
		{"abc", "0"},
		{"1.5e-3", "0"},
		{"-1e+3", "0"},
		{"1.5", "0"},
	}
	for _, tc := range cases {
		if got := ExpandScientific(tc.in); got != tc.want {
			t.Fatalf("ExpandScientific(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"150000000", "150000000"},
		{"  42 ", "42"},
		{"1.5e+3", "1500"},
		{"-5", "0"},
		{"1.25", "0"},
		{"", "0"},
		{"not-a-number", "0"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"150000000", "1.5e+3", "0", "garbage", "2e8", "  77  "}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeFloat(t *testing.T) {
	if got := NormalizeFloat(1500); got != "1500" {
		t.Fatalf("NormalizeFloat(1500) = %q", got)
	}
	if got := NormalizeFloat(1500.75); got != "1500" {
		t.Fatalf("NormalizeFloat(1500.75) = %q, want truncation", got)
	}
	if got := NormalizeFloat(-3); got != "0" {
		t.Fatalf("NormalizeFloat(-3) = %q", got)
	}
	if got := NormalizeFloat(math.NaN()); got != "0" {
		t.Fatalf("NormalizeFloat(NaN) = %q", got)
	}
	if got := NormalizeFloat(math.Inf(1)); got != "0" {
		t.Fatalf("NormalizeFloat(+Inf) = %q", got)
	}
}

func TestPickPositive(t *testing.T) {
	if got := PickPositive("0", "", "150000000", "7"); got != "150000000" {
		t.Fatalf("PickPositive = %q, want first positive candidate", got)
	}
	if got := PickPositive("0", "junk", "0"); got != "0" {
		t.Fatalf("PickPositive = %q, want 0 when nothing positive", got)
	}
	if got := PickPositive(); got != "0" {
		t.Fatalf("PickPositive() = %q", got)
	}
}

func TestNormalizeForAssetLegacyScaleCorrection(t *testing.T) {
	// 2 * 10^25 is an exact multiple of 10^16: rescales to 2 * 10^9 sats.
	got, adjusted := NormalizeForAsset("20000000000000000000000000", "nep141:btc.omft.near")
	if !adjusted {
		t.Fatalf("expected legacy-scale correction to fire")
	}
	if got != "2000000000" {
		t.Fatalf("corrected amount = %q, want 2000000000", got)
	}

	// One atomic unit above the exact multiple must be left untouched.
	got, adjusted = NormalizeForAsset("20000000000000000000000001", "nep141:btc.omft.near")
	if adjusted {
		t.Fatalf("correction fired on a non-divisible value")
	}
	if got != "20000000000000000000000001" {
		t.Fatalf("non-divisible amount changed: %q", got)
	}
}

func TestNormalizeForAssetBelowFactorUnchanged(t *testing.T) {
	got, adjusted := NormalizeForAsset("150000000", "nep141:zec.omft.near")
	if adjusted || got != "150000000" {
		t.Fatalf("already-correct sats amount changed: %q adjusted=%v", got, adjusted)
	}
}

func TestNormalizeForAssetNonUTXOAsset(t *testing.T) {
	got, adjusted := NormalizeForAsset("20000000000000000000000000", "nep141:eth.omft.near")
	if adjusted {
		t.Fatalf("correction fired on a 24-decimal asset")
	}
	if got != "20000000000000000000000000" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}

func TestAtomicDecimals(t *testing.T) {
	if got := AtomicDecimals("nep141:btc.omft.near"); got != 8 {
		t.Fatalf("btc decimals = %d", got)
	}
	if got := AtomicDecimals("NEP141:ZEC.OMFT.NEAR"); got != 8 {
		t.Fatalf("zec decimals = %d", got)
	}
	if got := AtomicDecimals("nep141:eth.omft.near"); got != 24 {
		t.Fatalf("eth decimals = %d", got)
	}
}

func TestIsLargeMismatch(t *testing.T) {
	if !IsLargeMismatch("1000", "6000") {
		t.Fatalf("6x divergence should be a mismatch")
	}
	if IsLargeMismatch("1000", "1200") {
		t.Fatalf("1.2x divergence should not be a mismatch")
	}
	if IsLargeMismatch("1000", "5000") {
		t.Fatalf("exactly 5x should not be a mismatch")
	}
	if !IsLargeMismatch("6000", "1000") {
		t.Fatalf("mismatch check must be symmetric")
	}
	if IsLargeMismatch("0", "1000") {
		t.Fatalf("zero amounts are never a mismatch")
	}
	if IsLargeMismatch("junk", "1000") {
		t.Fatalf("unparseable amounts are never a mismatch")
	}
}
