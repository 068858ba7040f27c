package domain

import "slices"

// FlagSet accumulates flags along a walk.
// Unique keeps first-insertion order without repeats; Occurrences keeps every
// flag as it was encountered so scoring can count repeats.
type FlagSet struct {
	Unique      []string `json:"unique"`
	Occurrences []string `json:"occurrences"`
}

// Add returns a new set with the flags merged in. The receiver is not modified.
func (f FlagSet) Add(flags ...string) FlagSet {
	out := f.Clone()
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		out.Occurrences = append(out.Occurrences, flag)
		if !slices.Contains(out.Unique, flag) {
			out.Unique = append(out.Unique, flag)
		}
	}
	return out
}

// Has reports whether the flag was collected at least once.
func (f FlagSet) Has(flag string) bool {
	return slices.Contains(f.Unique, flag)
}

// Len returns the number of distinct flags.
func (f FlagSet) Len() int {
	return len(f.Unique)
}

// Clone returns an independent copy.
func (f FlagSet) Clone() FlagSet {
	return FlagSet{
		Unique:      slices.Clone(f.Unique),
		Occurrences: slices.Clone(f.Occurrences),
	}
}
