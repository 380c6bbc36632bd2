package handler

import (
	"sort"

	"github.com/gammazero/deque"
	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/indexer"
	"github.com/lunfardo314/txhandler/ledger/utxopool"
	"go.uber.org/zap"
)

// TxHandler owns a UTXO pool and processes rounds of candidate transactions against it.
// It is not thread safe: one round is one exclusive critical section over the pool
type TxHandler struct {
	pool          *utxopool.Pool
	log           *zap.SugaredLogger
	verify        ledger.VerifyFunc
	insertOutputs bool
	indexer       *indexer.Indexer
	round         int
}

type Option func(h *TxHandler)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(h *TxHandler) {
		h.log = log
	}
}

func WithSignatureVerifier(verify ledger.VerifyFunc) Option {
	return func(h *TxHandler) {
		h.verify = verify
	}
}

// WithOutputInsertion makes outputs of committed transactions spendable: they are added to the pool
// and can be consumed later in the same round or in later rounds
func WithOutputInsertion() Option {
	return func(h *TxHandler) {
		h.insertOutputs = true
	}
}

// WithIndexer keeps the address index in sync with every round
func WithIndexer(inr *indexer.Indexer) Option {
	return func(h *TxHandler) {
		h.indexer = inr
	}
}

// NewTxHandler creates handler with its own copy of the pool. Later changes of the
// pool by the caller do not affect the handler and vice versa
func NewTxHandler(pool *utxopool.Pool, opts ...Option) *TxHandler {
	ret := &TxHandler{
		pool:   pool.Copy(),
		log:    zap.NewNop().Sugar(),
		verify: ledger.VerifyED25519,
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.log = ret.log.Named("txhandler")
	return ret
}

// UTXOPool is the working pool of the handler. The caller must not use it concurrently with HandleTxs
func (h *TxHandler) UTXOPool() *utxopool.Pool {
	return h.pool
}

// Snapshot returns independent copy of the current pool
func (h *TxHandler) Snapshot() *utxopool.Pool {
	return h.pool.Copy()
}

func (h *TxHandler) IsValidTx(tx *ledger.Transaction) bool {
	return IsValid(tx, h.pool, h.verify)
}

// HandleTxs processes one round. It returns the accepted transactions in the order of acceptance
// and removes the outputs consumed by them from the pool.
// Candidates are taken in their order: the first valid candidate is accepted, then the rest
// are validated again against the updated pool, and so on until no valid candidate is left.
// Invalid and conflicting candidates are dropped silently
func (h *TxHandler) HandleTxs(candidates []*ledger.Transaction) []*ledger.Transaction {
	h.round++
	log := h.log.With("round", h.round)

	accepted := make([]*ledger.Transaction, 0)
	indexerUpdate := make([]*indexer.Command, 0)

	work := new(deque.Deque[int])
	rejected := make([]int, 0)
	for i := range candidates {
		if h.isValidCandidate(log, candidates, i) {
			work.PushBack(i)
		} else {
			rejected = append(rejected, i)
		}
	}

	for work.Len() > 0 {
		i := work.PopFront()
		accepted = append(accepted, candidates[i])
		indexerUpdate = append(indexerUpdate, h.commit(candidates[i])...)
		if log.Desugar().Core().Enabled(zap.DebugLevel) {
			txid := candidates[i].ID()
			log.Debugf("candidate #%d accepted: %s", i, txid.String())
		}

		if h.insertOutputs {
			rejected = h.refilterAll(log, candidates, work, rejected)
		} else {
			h.refilter(log, candidates, work)
		}
	}

	if h.indexer != nil && len(indexerUpdate) > 0 {
		if err := h.indexer.Update(indexerUpdate); err != nil {
			log.Errorf("pool was updated but indexer update failed with '%v'", err)
		}
	}
	log.Infof("candidates: %d, accepted: %d, pool size: %d", len(candidates), len(accepted), h.pool.Len())
	return accepted
}

func (h *TxHandler) isValidCandidate(log *zap.SugaredLogger, candidates []*ledger.Transaction, i int) bool {
	if err := Validate(candidates[i], h.pool, h.verify); err != nil {
		log.Debugf("candidate #%d rejected: %v", i, err)
		return false
	}
	return true
}

// refilter validates the work-list against the current pool in place, keeping the order
func (h *TxHandler) refilter(log *zap.SugaredLogger, candidates []*ledger.Transaction, work *deque.Deque[int]) {
	n := work.Len()
	for k := 0; k < n; k++ {
		i := work.PopFront()
		if h.isValidCandidate(log, candidates, i) {
			work.PushBack(i)
		}
	}
}

// refilterAll also reconsiders candidates rejected earlier: outputs inserted by the last
// commit may have made them valid. Order of candidates is kept
func (h *TxHandler) refilterAll(log *zap.SugaredLogger, candidates []*ledger.Transaction, work *deque.Deque[int], rejected []int) []int {
	pending := make([]int, 0, work.Len()+len(rejected))
	for work.Len() > 0 {
		pending = append(pending, work.PopFront())
	}
	pending = append(pending, rejected...)
	sort.Ints(pending)

	rejected = rejected[:0]
	for _, i := range pending {
		if h.isValidCandidate(log, candidates, i) {
			work.PushBack(i)
		} else {
			rejected = append(rejected, i)
		}
	}
	return rejected
}

// commit removes outputs consumed by the transaction from the pool and, if enabled,
// adds the produced ones. Returns corresponding indexer commands
func (h *TxHandler) commit(tx *ledger.Transaction) []*indexer.Command {
	ret := make([]*indexer.Command, 0)
	for _, in := range tx.Inputs {
		if h.indexer != nil {
			if out, found := h.pool.Get(in.OutputID); found {
				ret = append(ret, &indexer.Command{
					Address:  out.Address,
					OutputID: in.OutputID,
					Delete:   true,
				})
			}
		}
		h.pool.Remove(in.OutputID)
	}
	if !h.insertOutputs {
		return ret
	}
	tx.ForEachProducedOutput(func(_ uint16, o *ledger.Output, oid *ledger.OutputID) bool {
		h.pool.Add(*oid, o)
		if h.indexer != nil {
			ret = append(ret, &indexer.Command{
				Address:  o.Address,
				OutputID: *oid,
			})
		}
		return true
	})
	return ret
}
