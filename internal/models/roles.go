package models

// Role identifies who authored a turn in the conversation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCounter  Role = "counter"
	RoleBroker   Role = "broker"
	RoleObserver Role = "observer"
	RoleReviewer Role = "reviewer"
	RoleSystem   Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCounter, RoleBroker, RoleObserver, RoleReviewer, RoleSystem:
		return true
	default:
		return false
	}
}

// DelegationTarget is the collaborator the counter asks to act within a turn.
type DelegationTarget int

const (
	DelegateNone DelegationTarget = iota
	DelegateBroker
	DelegateReviewer
)

func (d DelegationTarget) String() string {
	switch d {
	case DelegateBroker:
		return string(RoleBroker)
	case DelegateReviewer:
		return string(RoleReviewer)
	default:
		return "none"
	}
}

// ParseDelegationTarget maps the counter's free-text collaborator tag onto the
// closed set of targets. Tags are matched exactly, so "Broker" or " reviewer"
// are unknown. ok is false for any tag outside "", "none", "broker" and "reviewer"; the
// returned target is then DelegateNone.
func ParseDelegationTarget(raw string) (target DelegationTarget, ok bool) {
	switch raw {
	case "", "none":
		return DelegateNone, true
	case string(RoleBroker):
		return DelegateBroker, true
	case string(RoleReviewer):
		return DelegateReviewer, true
	default:
		return DelegateNone, false
	}
}
