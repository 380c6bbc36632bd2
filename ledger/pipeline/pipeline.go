package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/handler"
	"github.com/lunfardo314/txhandler/util/fifoqueue"
	"github.com/lunfardo314/txhandler/util/waitingroom"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Pipeline feeds the handler asynchronously. Transaction bytes are parsed by the intake
// goroutine and collected into the current round. When the round is closed it is queued
// and processed by the single round goroutine, so rounds never overlap and keep their order
type (
	Pipeline struct {
		log         *zap.SugaredLogger
		handler     *handler.TxHandler
		intake      *fifoqueue.FIFOQueue[intakeItem]
		rounds      *fifoqueue.FIFOQueue[[]*ledger.Transaction]
		onRound     func(round int, accepted []*ledger.Transaction)
		roundPeriod time.Duration
		wr          *waitingroom.WaitingRoom

		mutex   sync.Mutex
		started bool
		stopped bool
		done    chan struct{}

		numDropped atomic.Int64
		numRounds  atomic.Int64
	}

	intakeItem struct {
		txBytes    []byte
		closeRound bool
	}

	Option func(pipe *Pipeline)
)

var ErrStopped = errors.New("pipeline is stopped")

// WithRoundPeriod closes the current round periodically
func WithRoundPeriod(d time.Duration) Option {
	return func(pipe *Pipeline) {
		pipe.roundPeriod = d
	}
}

// WithOnRound sets callback called with the accepted transactions after each round.
// It is called from the round goroutine
func WithOnRound(fun func(round int, accepted []*ledger.Transaction)) Option {
	return func(pipe *Pipeline) {
		pipe.onRound = fun
	}
}

func New(h *handler.TxHandler, globalLog *zap.SugaredLogger, opts ...Option) *Pipeline {
	ret := &Pipeline{
		log:     globalLog.Named("pipeline"),
		handler: h,
		intake:  fifoqueue.New[intakeItem](),
		rounds:  fifoqueue.New[[]*ledger.Transaction](),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (pipe *Pipeline) Start() {
	pipe.mutex.Lock()
	defer pipe.mutex.Unlock()

	if pipe.started || pipe.stopped {
		return
	}
	pipe.started = true

	go pipe.intakeLoop()
	go pipe.roundLoop()

	if pipe.roundPeriod > 0 {
		pollEvery := pipe.roundPeriod / 4
		if pollEvery < time.Millisecond {
			pollEvery = time.Millisecond
		}
		pipe.wr = waitingroom.New(pollEvery)
		pipe.scheduleRoundClose()
	}
}

func (pipe *Pipeline) intakeLoop() {
	log := pipe.log.Named("intake")
	log.Infof("STARTED")

	pending := make([]*ledger.Transaction, 0)
	pipe.intake.Consume(func(it intakeItem) {
		if it.closeRound {
			if len(pending) > 0 {
				pipe.rounds.Write(pending)
				pending = make([]*ledger.Transaction, 0)
			}
			return
		}
		tx, err := ledger.TransactionFromBytes(it.txBytes)
		if err != nil {
			pipe.numDropped.Inc()
			log.Debugf("transaction bytes dropped. Reason: '%v'", err)
			return
		}
		pending = append(pending, tx)
	})
	if len(pending) > 0 {
		pipe.rounds.Write(pending)
	}
	// close downstream
	pipe.rounds.Close()
	log.Infof("STOPPED")
}

func (pipe *Pipeline) roundLoop() {
	log := pipe.log.Named("rounds")
	log.Infof("STARTED")

	pipe.rounds.Consume(func(txs []*ledger.Transaction) {
		accepted := pipe.handler.HandleTxs(txs)
		round := int(pipe.numRounds.Inc())
		log.Debugf("round %d: %d transactions in, %d accepted", round, len(txs), len(accepted))
		if pipe.onRound != nil {
			pipe.onRound(round, accepted)
		}
	})
	close(pipe.done)
	log.Infof("STOPPED")
}

// scheduleRoundClose must be called with the mutex locked
func (pipe *Pipeline) scheduleRoundClose() {
	pipe.wr.CallDelayed(pipe.roundPeriod, func() {
		pipe.mutex.Lock()
		defer pipe.mutex.Unlock()

		if pipe.stopped {
			return
		}
		pipe.intake.Write(intakeItem{closeRound: true})
		pipe.scheduleRoundClose()
	})
}

// ProcessTransaction puts transaction bytes into the current round
func (pipe *Pipeline) ProcessTransaction(txBytes []byte) error {
	pipe.mutex.Lock()
	defer pipe.mutex.Unlock()

	if pipe.stopped {
		return ErrStopped
	}
	pipe.intake.Write(intakeItem{txBytes: txBytes})
	return nil
}

// CloseRound ends the current round. Transactions submitted after it go to the next round
func (pipe *Pipeline) CloseRound() error {
	pipe.mutex.Lock()
	defer pipe.mutex.Unlock()

	if pipe.stopped {
		return ErrStopped
	}
	pipe.intake.Write(intakeItem{closeRound: true})
	return nil
}

// Stop closes the current round and the intake. Queued rounds are still processed, Done is closed after them
func (pipe *Pipeline) Stop() {
	pipe.mutex.Lock()
	defer pipe.mutex.Unlock()

	if pipe.stopped {
		return
	}
	pipe.stopped = true
	if pipe.wr != nil {
		pipe.wr.Stop()
	}
	pipe.intake.Close()
	if !pipe.started {
		close(pipe.done)
	}
}

// Done is closed when the last round was processed after Stop
func (pipe *Pipeline) Done() <-chan struct{} {
	return pipe.done
}

func (pipe *Pipeline) NumDropped() int {
	return int(pipe.numDropped.Load())
}

func (pipe *Pipeline) NumRounds() int {
	return int(pipe.numRounds.Load())
}
