package tddb

import (
	"fmt"
	"math/bits"
	"strings"
)

// Features is the schema version persisted in the system record. Each bit
// records a feature the writer was built with.
type Features uint32

const (
	FeatureLE Features = 1 << iota
	FeatureLESigning
	FeaturePrivacy
	FeatureExtended
	FeatureGATTCaching
)

// DefaultFeatures is the feature set of a current directory.
const DefaultFeatures = FeatureLE | FeatureLESigning | FeaturePrivacy | FeatureExtended | FeatureGATTCaching

// ignorableFeatures may differ between the stored and current version
// without any change to the persisted layout.
const ignorableFeatures = FeatureLESigning

var featureNames = []struct {
	bit  Features
	name string
}{
	{FeatureLE, "le"},
	{FeatureLESigning, "le-signing"},
	{FeaturePrivacy, "privacy"},
	{FeatureExtended, "extended"},
	{FeatureGATTCaching, "gatt-caching"},
}

// Has reports whether every bit of f2 is set in f.
func (f Features) Has(f2 Features) bool {
	return f&f2 == f2
}

func (f Features) String() string {
	if f == 0 {
		return "none"
	}

	var names []string

	rest := f

	for _, fn := range featureNames {
		if f&fn.bit != 0 {
			names = append(names, fn.name)
			rest &^= fn.bit
		}
	}

	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}

	return strings.Join(names, "|")
}

// ParseFeatures parses a list of feature names as printed by
// [Features.String]. Names may be separated by "|" or ",".
func ParseFeatures(names []string) (Features, error) {
	var f Features

	for _, raw := range names {
		for name := range strings.FieldsFuncSeq(raw, func(r rune) bool { return r == '|' || r == ',' }) {
			bit, ok := featureBit(strings.TrimSpace(name))
			if !ok {
				return 0, fmt.Errorf("parse features: unknown feature %q: %w", name, ErrInvalidParams)
			}

			f |= bit
		}
	}

	return f, nil
}

func featureBit(name string) (Features, bool) {
	for _, fn := range featureNames {
		if strings.EqualFold(fn.name, name) {
			return fn.bit, true
		}
	}

	return 0, false
}

// onlyIgnorableDiffers reports whether stored and current differ in exactly
// one bit and that bit is ignorable.
func onlyIgnorableDiffers(stored, current Features) bool {
	diff := stored ^ current

	return bits.OnesCount32(uint32(diff)) == 1 && diff&ignorableFeatures != 0
}
