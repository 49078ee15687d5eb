package taintfifo

// Ledger is the live UTXO set: a plain-map store of outpoint -> address and
// outpoint -> AddressInfo, with no taint invariant enforcement of its own —
// the block processor is responsible for keeping the two maps and the
// taint sums consistent.
type Ledger struct {
	addresses map[Outpoint]string
	infos     map[Outpoint]*AddressInfo
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		addresses: make(map[Outpoint]string),
		infos:     make(map[Outpoint]*AddressInfo),
	}
}

// PutAddress records the address for an outpoint, independent of whether an
// AddressInfo exists yet (coinbase outputs are registered this way before
// any fee is ever attributed to them).
func (l *Ledger) PutAddress(op Outpoint, address string) {
	l.addresses[op] = address
}

// Address returns the address recorded for op, or "" if none.
func (l *Ledger) Address(op Outpoint) string {
	return l.addresses[op]
}

// PutInfo stores (or replaces) the AddressInfo for op.
func (l *Ledger) PutInfo(op Outpoint, info *AddressInfo) {
	l.infos[op] = info
}

// Get returns the AddressInfo for op, if one has been recorded.
func (l *Ledger) Get(op Outpoint) (*AddressInfo, bool) {
	info, ok := l.infos[op]
	return info, ok
}

// Remove deletes both the address and info entries for op (spending it).
func (l *Ledger) Remove(op Outpoint) {
	delete(l.addresses, op)
	delete(l.infos, op)
}

// Len returns the number of live UTXOs (by address-map membership, which
// every registered outpoint has, whether or not its AddressInfo exists yet).
func (l *Ledger) Len() int { return len(l.addresses) }

// EachUTXO visits every (outpoint, address) pair. Order is unspecified.
func (l *Ledger) EachUTXO(visit func(op Outpoint, address string)) {
	for op, addr := range l.addresses {
		visit(op, addr)
	}
}

// EachInfo visits every (outpoint, AddressInfo) pair that has one recorded.
// Order is unspecified.
func (l *Ledger) EachInfo(visit func(op Outpoint, info *AddressInfo)) {
	for op, info := range l.infos {
		visit(op, info)
	}
}
