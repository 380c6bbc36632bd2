package indexer

import (
	"sort"
	"sync"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/utxopool"
	"github.com/lunfardo314/unitrie/common"
)

// Indexer maps addresses to output IDs locked in them. It is only a hint:
// the pool is the source of truth, so outputs not in the pool are filtered out on read
type Indexer struct {
	mutex sync.RWMutex
	store Store
}

type Store interface {
	common.BatchedUpdatable
	common.Traversable
	common.KVReader
}

// Command is one update of the index
type Command struct {
	Address  ledger.Address
	OutputID ledger.OutputID
	Delete   bool
}

func New(store Store) *Indexer {
	return &Indexer{
		store: store,
	}
}

// NewInMemory mostly for testing
func NewInMemory() *Indexer {
	return New(common.NewInMemoryKVStore())
}

func addressPrefix(addr ledger.Address) []byte {
	easyfl.Assert(len(addr) < 256, "address too long")
	return common.Concat(byte(len(addr)), []byte(addr))
}

// GetUTXOsForAddress returns outputs of the address present in the pool, sorted by output ID
func (inr *Indexer) GetUTXOsForAddress(addr ledger.Address, pool *utxopool.Pool) ([]*ledger.OutputWithID, error) {
	inr.mutex.RLock()
	defer inr.mutex.RUnlock()

	prefix := addressPrefix(addr)
	ret := make([]*ledger.OutputWithID, 0)
	var err error
	inr.store.Iterator(prefix).IterateKeys(func(k []byte) bool {
		o := &ledger.OutputWithID{}
		if o.ID, err = ledger.OutputIDFromBytes(k[len(prefix):]); err != nil {
			return false
		}
		var found bool
		if o.Output, found = pool.Get(o.ID); !found {
			// consumed or not yet known to the pool
			return true
		}
		ret = append(ret, o)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool {
		return ledger.LessOutputID(&ret[i].ID, &ret[j].ID)
	})
	return ret, nil
}

// Update applies commands in one batch
func (inr *Indexer) Update(cmds []*Command) error {
	inr.mutex.Lock()
	defer inr.mutex.Unlock()

	w := inr.store.BatchedWriter()
	for _, c := range cmds {
		k := common.Concat(addressPrefix(c.Address), c.OutputID[:])
		if c.Delete {
			w.Set(k, nil)
		} else {
			w.Set(k, []byte{0xff})
		}
	}
	return w.Commit()
}

// IndexPool indexes all outputs of the pool
func (inr *Indexer) IndexPool(pool *utxopool.Pool) error {
	cmds := make([]*Command, 0)
	pool.ForEach(func(oid ledger.OutputID, out *ledger.Output) bool {
		cmds = append(cmds, &Command{
			Address:  out.Address,
			OutputID: oid,
		})
		return true
	})
	return inr.Update(cmds)
}
