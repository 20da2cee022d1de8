package models

// Host is one remote machine reachable through the bastion gateway.
// Produced fresh from an inventory lookup at the start of an operation
// and never persisted.
type Host struct {
	ID          string
	Addr        string
	User        string
	KeyName     string
	Environment string
}

// Label is the prefix attached to every output line emitted for this
// host during a fan-out.
func (h Host) Label() string {
	if h.Environment == "" {
		return h.ID
	}
	return h.Environment + "/" + h.ID
}
