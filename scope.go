package tiercache

// Scope selects the tiers an operation touches.
type Scope uint8

const (
	ScopeDisk Scope = 1 << iota
	ScopeMemory

	ScopeAll = ScopeDisk | ScopeMemory
)

func (s Scope) Memory() bool { return s&ScopeMemory != 0 }
func (s Scope) Disk() bool   { return s&ScopeDisk != 0 }

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeMemory:
		return "memory"
	case ScopeDisk:
		return "disk"
	default:
		return "none"
	}
}
