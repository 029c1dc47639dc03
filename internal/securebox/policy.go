package securebox

import "fmt"

// Policy selects which storage tiers an operation touches and in which
// order. The core never assumes a default; callers resolve their default
// at the boundary (CLI flag, HTTP parameter) and always pass a policy.
type Policy int

const (
	// TransientOnly uses the session tier exclusively; storing also
	// deletes any permanent copy of the name.
	TransientOnly Policy = iota
	// PermanentOnly uses the database tier exclusively; storing also
	// deletes any transient copy of the name.
	PermanentOnly
	// PermanentThenTransient fetches permanent first; storing updates an
	// existing copy wherever it lives, creating in permanent otherwise.
	PermanentThenTransient
	// TransientThenPermanent fetches transient first; storing updates an
	// existing copy wherever it lives, creating in transient otherwise.
	TransientThenPermanent
	// All has delete semantics only: remove from every tier.
	All
)

func (p Policy) String() string {
	switch p {
	case TransientOnly:
		return "transient-only"
	case PermanentOnly:
		return "permanent-only"
	case PermanentThenTransient:
		return "permanent-then-transient"
	case TransientThenPermanent:
		return "transient-then-permanent"
	case All:
		return "all"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy resolves a policy name. Short aliases exist for CLI use.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "transient", "transient-only", "session":
		return TransientOnly, nil
	case "permanent", "permanent-only", "db":
		return PermanentOnly, nil
	case "permanent-first", "permanent-then-transient":
		return PermanentThenTransient, nil
	case "transient-first", "transient-then-permanent":
		return TransientThenPermanent, nil
	case "all":
		return All, nil
	default:
		return 0, fmt.Errorf("unknown storage policy %q", s)
	}
}

// tier identifies one backing store.
type tier int

const (
	tierTransient tier = iota
	tierPermanent
)

func (t tier) String() string {
	if t == tierTransient {
		return "transient"
	}
	return "permanent"
}

// tierResult is the outcome of a single tier attempt. Corrupt entries are
// self-healed (deleted) by the attempt itself; the resolver treats them
// like missing ones.
type tierResult int

const (
	tierFound tierResult = iota
	tierMissing
	tierCorrupt
)

// fetchOrder returns the tiers to try, in order, when fetching under p.
func (p Policy) fetchOrder() []tier {
	switch p {
	case TransientOnly:
		return []tier{tierTransient}
	case PermanentOnly:
		return []tier{tierPermanent}
	case PermanentThenTransient:
		return []tier{tierPermanent, tierTransient}
	case TransientThenPermanent:
		return []tier{tierTransient, tierPermanent}
	default:
		return nil
	}
}
