package utxopool

import (
	"sort"

	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/unitrie/common"
)

// Store is any key/value store the pool can live in. Setting nil value deletes the key
type Store interface {
	common.KVReader
	common.KVWriter
	common.Traversable
}

// Pool is the set of unspent outputs: OutputID -> Output, kept serialized in the store.
// Not thread safe: the owner must serialize access
type Pool struct {
	store Store
}

func New(store Store) *Pool {
	return &Pool{store: store}
}

func NewInMemory() *Pool {
	return New(common.NewInMemoryKVStore())
}

// FromOutputs creates in-memory pool from the list. Outputs are copied
func FromOutputs(outs ...*ledger.OutputWithID) *Pool {
	ret := NewInMemory()
	for _, o := range outs {
		ret.Add(o.ID, o.Output)
	}
	return ret
}

// Add inserts or overwrites the output
func (p *Pool) Add(oid ledger.OutputID, out *ledger.Output) {
	p.store.Set(oid[:], out.Bytes())
}

// Remove deletes the output. Absent key is not an error
func (p *Pool) Remove(oid ledger.OutputID) {
	p.store.Set(oid[:], nil)
}

// Get returns parsed copy of the output. Data which does not parse is treated as absent
func (p *Pool) Get(oid ledger.OutputID) (*ledger.Output, bool) {
	data := p.store.Get(oid[:])
	if len(data) == 0 {
		return nil, false
	}
	ret, err := ledger.OutputFromBytes(data)
	if err != nil {
		return nil, false
	}
	return ret, true
}

// Contains agrees with Get: entries which do not parse are absent
func (p *Pool) Contains(oid ledger.OutputID) bool {
	_, found := p.Get(oid)
	return found
}

// Copy returns independent in-memory pool with the same content
func (p *Pool) Copy() *Pool {
	ret := NewInMemory()
	p.store.Iterator(nil).Iterate(func(k, v []byte) bool {
		ret.store.Set(append([]byte(nil), k...), append([]byte(nil), v...))
		return true
	})
	return ret
}

// ForEach iterates the pool in non-deterministic order. Entries which do not parse are skipped
func (p *Pool) ForEach(fun func(oid ledger.OutputID, out *ledger.Output) bool) {
	p.store.Iterator(nil).Iterate(func(k, v []byte) bool {
		oid, err := ledger.OutputIDFromBytes(k)
		if err != nil {
			return true
		}
		out, err := ledger.OutputFromBytes(v)
		if err != nil {
			return true
		}
		return fun(oid, out)
	})
}

// Len counts entries visible through ForEach
func (p *Pool) Len() int {
	ret := 0
	p.ForEach(func(_ ledger.OutputID, _ *ledger.Output) bool {
		ret++
		return true
	})
	return ret
}

// OutputIDs returns sorted keys of the pool
func (p *Pool) OutputIDs() []ledger.OutputID {
	ret := make([]ledger.OutputID, 0)
	p.ForEach(func(oid ledger.OutputID, _ *ledger.Output) bool {
		ret = append(ret, oid)
		return true
	})
	sort.Slice(ret, func(i, j int) bool {
		return ledger.LessOutputID(&ret[i], &ret[j])
	})
	return ret
}

// Balance sums amounts of all outputs of the address. The sum saturates at the int64 bounds
func (p *Pool) Balance(addr ledger.Address) (ret int64) {
	p.ForEach(func(_ ledger.OutputID, out *ledger.Output) bool {
		if out.Address.Equal(addr) {
			ret = ledger.AddAmountSaturated(ret, out.Amount)
		}
		return true
	})
	return
}
