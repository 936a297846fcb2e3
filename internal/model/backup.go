package model

// Backup is one entry of an origin's replica roster. Index is the position in
// the configured order, which is also the order pushes happen in.
type Backup struct {
	Index   int
	Address string
}

// NewRoster numbers addresses in order
func NewRoster(addresses []string) []Backup {
	roster := make([]Backup, len(addresses))
	for i, addr := range addresses {
		roster[i] = Backup{Index: i, Address: addr}
	}
	return roster
}
