package descriptor

import "errors"

var (
	// ErrNoNestedMultisig is returned for sh(wsh(...)) descriptors whose
	// witness script is not a sortedmulti.
	ErrNoNestedMultisig = errors.New("no multisig found in nested wsh")

	// ErrNoThreshold is returned for sh and wsh descriptors that don't
	// wrap a sortedmulti.
	ErrNoThreshold = errors.New("No threshold")

	// ErrThresholdUnsupported is returned for descriptor types that can
	// never carry a threshold.
	ErrThresholdUnsupported = errors.New("Descriptor type does not " +
		"have threshold")
)

// Threshold returns the number of required signatures of a sortedmulti
// wrapped in sh, wsh or sh(wsh).
func Threshold(d Descriptor) (uint32, error) {
	switch d := d.(type) {
	case *Sh:
		switch {
		case d.SortedMulti != nil:
			return d.SortedMulti.K, nil

		case d.Wsh != nil && d.Wsh.SortedMulti != nil:
			return d.Wsh.SortedMulti.K, nil

		case d.Wsh != nil:
			return 0, ErrNoNestedMultisig

		default:
			return 0, ErrNoThreshold
		}

	case *Wsh:
		if d.SortedMulti != nil {
			return d.SortedMulti.K, nil
		}

		return 0, ErrNoThreshold

	default:
		return 0, ErrThresholdUnsupported
	}
}
