// Package quality maps publication-quality policy names to record exclusion
// masks over primary/secondary quality-flag variables.
//
// Records are classified from the flag pair: primary == 1 is public-good,
// primary == 4 with secondary == 1 is nonpub-all, and everything else is
// public-bad. Good and bad cannot be told apart inside nonpub data, which is
// why several requested sets collapse onto nonpub-all. The exclusion table
// encodes a data-curation convention and is preserved exactly.
package quality

import "strings"

// Set names a publication-quality policy.
type Set string

// Canonical set names. Normalize maps aliases and unknown names onto these.
const (
	PublicGood  Set = "public-good"
	PublicBad   Set = "public-bad"
	PublicAll   Set = "public-all"
	NonpubAll   Set = "nonpub-all"
	BothGoodAll Set = "both-goodall"
	BothBadAll  Set = "both-badall"
	BothAll     Set = "both-all"
)

// Default is the policy used when a requested set name is not recognized.
const Default = PublicGood

// Normalize resolves a requested set name to its canonical Set. Aliases map to
// their canonical equivalents; the nonpub good/bad split cannot be determined
// from the flags, so those names collapse to nonpub-all. Unrecognized names
// fall back to Default rather than erroring.
func Normalize(name string) Set {
	switch Set(strings.ToLower(name)) {
	case "public", PublicGood:
		return PublicGood
	case "nonpub", "nonpub-good", "nonpub-bad", NonpubAll:
		return NonpubAll
	case "both", "both-good", BothGoodAll:
		return BothGoodAll
	case "both-bad", BothBadAll:
		return BothBadAll
	case PublicBad:
		return PublicBad
	case PublicAll:
		return PublicAll
	case BothAll:
		return BothAll
	default:
		return Default
	}
}

// FlagKind classifies a quality-flag variable by what its values mean.
type FlagKind int

const (
	// FlagNone is a flag variable with no defined policy, e.g. a
	// per-frequency-bin flag. It yields no mask at all.
	FlagNone FlagKind = iota
	// FlagPair is a primary flag qualified by a <prefix>FlagSecondary
	// companion. The exclusion table applies.
	FlagPair
	// FlagBitmask is a bitmask status field, e.g. gpsStatusFlags. It yields an
	// all-pass mask: the bits are diagnostics, not a validity verdict.
	FlagBitmask
)

// KindOf classifies a flag variable by name.
func KindOf(flagName string) FlagKind {
	switch {
	case strings.HasSuffix(flagName, "StatusFlags"):
		return FlagBitmask
	case strings.Contains(flagName, "Frequency"):
		return FlagNone
	case strings.HasSuffix(flagName, "FlagPrimary"):
		return FlagPair
	default:
		return FlagNone
	}
}

// Mask builds the exclusion mask for a primary/secondary flag pair under the
// given set. mask[i] == true excludes record i. secondary may be nil, in which
// case no record can classify as nonpub-all. The returned mask has the length
// of primary.
func Mask(set Set, primary, secondary []float64) []bool {
	n := len(primary)
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		good := primary[i] == 1
		nonpub := primary[i] == 4 && secondary != nil && i < len(secondary) && secondary[i] == 1
		switch set {
		case PublicGood:
			mask[i] = !good
		case NonpubAll:
			mask[i] = !nonpub
		case PublicAll:
			mask[i] = nonpub
		case BothGoodAll:
			mask[i] = !(good || nonpub)
		case PublicBad:
			mask[i] = good || nonpub
		case BothBadAll:
			mask[i] = good
		case BothAll:
			mask[i] = false
		default:
			mask[i] = !good
		}
	}
	return mask
}

// MaskFor builds the exclusion mask appropriate for a named flag variable. It
// returns nil (no mask) for flag variables without a defined policy, an
// all-pass mask for bitmask status fields, and the pair-policy mask otherwise.
func MaskFor(flagName string, set Set, primary, secondary []float64) []bool {
	switch KindOf(flagName) {
	case FlagPair:
		return Mask(set, primary, secondary)
	case FlagBitmask:
		return make([]bool, len(primary))
	default:
		return nil
	}
}

// VarPrefix returns the lowercase leading run of a variable name: "wave" for
// "waveHs", "sst" for "sstSeaSurfaceTemperature". The prefix names the
// variable family and its time dimension.
func VarPrefix(name string) string {
	for i, c := range name {
		if c >= 'A' && c <= 'Z' {
			return name[:i]
		}
	}
	return name
}
