package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustlend/core/events"
	"trustlend/core/state"
	"trustlend/crypto"
	"trustlend/native/access"
	"trustlend/native/bank"
	nativecommon "trustlend/native/common"
	"trustlend/native/credit"
	"trustlend/native/lending"
	"trustlend/native/reputation"
	"trustlend/native/trust"
	"trustlend/observability"
	"trustlend/observability/metrics"
	"trustlend/storage"
)

var (
	ErrOwnerRequired = errors.New("protocol: owner address required")
	ErrUnknownModule = errors.New("protocol: unknown module")
)

const (
	tracerName    = "trustlend/core/protocol"
	historyLimit  = 1024
	pausesKeyName = "protocol/pauses"
)

// Config bundles the parameters needed to assemble the protocol.
type Config struct {
	Owner    crypto.Address
	Updaters []crypto.Address
	Credit   credit.Params
	Lending  lending.Params
	Trust    trust.Params
	Pauses   map[string]bool
}

// DefaultConfig returns the reference parameters for owner.
func DefaultConfig(owner crypto.Address) Config {
	return Config{
		Owner:   owner,
		Credit:  credit.DefaultParams(),
		Lending: lending.DefaultParams(),
		Trust:   trust.DefaultParams(),
	}
}

type inCallKey struct{}

type capabilityGrant struct {
	cap     access.Capability
	account crypto.Address
}

type pauseEntry struct {
	Module string
	Paused bool
}

// Engine composes the reputation store, trust graph, credit policy, loan book
// and access controller behind a single writer. Every mutating call runs in a
// state journal: it either commits completely or leaves no trace, and its
// events are published only after commit.
type Engine struct {
	mu sync.Mutex

	state      *state.Manager
	access     *access.Controller
	reputation *reputation.Store
	trust      *trust.Graph
	policy     *credit.Policy
	lending    *lending.Engine
	bank       *bank.Ledger
	pauses     *nativecommon.PauseTable

	buffer *events.Buffer
	stream *events.Stream
	// afterCommit holds in-memory updates that mirror staged writes. They
	// run only once the journal has committed.
	afterCommit []func()

	tracer  trace.Tracer
	metrics *metrics.CreditMetrics
	logger  *slog.Logger
}

// New assembles the protocol over db. The owner is bootstrapped on first use;
// module accounts and the configured updaters are granted their capabilities
// on every start so a fresh database and a reopened one behave alike.
func New(db storage.Database, cfg Config) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("protocol: database required")
	}
	if cfg.Owner.IsZero() {
		return nil, ErrOwnerRequired
	}
	manager := state.NewManager(db)
	buffer := &events.Buffer{}
	pauses := nativecommon.NewPauseTable(nil)

	controller := access.NewController(manager)
	controller.SetEmitter(buffer)

	store := reputation.NewStore(manager, controller)
	store.SetEmitter(buffer)
	store.SetPauses(pauses)

	graph := trust.NewGraph(manager, store, controller, TrustModuleAddress, cfg.Trust)
	graph.SetEmitter(buffer)
	graph.SetPauses(pauses)

	ledger := bank.NewLedger(manager)
	ledger.SetEmitter(buffer)

	policy := credit.NewPolicy(cfg.Credit)
	loans := lending.NewEngine(LendingModuleAddress, policy, cfg.Lending)
	loans.SetState(lending.NewKVState(manager))
	loans.SetPorts(store, graph, ledger, controller)
	loans.SetEmitter(buffer)
	loans.SetPauses(pauses)

	e := &Engine{
		state:      manager,
		access:     controller,
		reputation: store,
		trust:      graph,
		policy:     policy,
		lending:    loans,
		bank:       ledger,
		pauses:     pauses,
		buffer:     buffer,
		stream:     events.NewStream(historyLimit),
		tracer:     otel.Tracer(tracerName),
		metrics:    metrics.Credit(),
		logger:     slog.Default().With(slog.String("component", "protocol")),
	}
	if err := e.bootstrap(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) bootstrap(cfg Config) error {
	return e.execute(context.Background(), "bootstrap", func(context.Context) error {
		stored, err := e.access.Owner()
		if err != nil {
			return err
		}
		if err := e.access.Bootstrap(cfg.Owner); err != nil {
			return err
		}
		owner, err := e.access.Owner()
		if err != nil {
			return err
		}
		grants := []capabilityGrant{
			{access.CapReputationUpdater, TrustModuleAddress},
			{access.CapReputationUpdater, LendingModuleAddress},
			{access.CapSlasher, LendingModuleAddress},
		}
		if stored.IsZero() {
			// A fresh protocol starts with the owner as its pauser; later
			// revocations are kept across restarts.
			grants = append(grants, capabilityGrant{access.CapPauser, owner})
		}
		for _, updater := range cfg.Updaters {
			grants = append(grants, capabilityGrant{access.CapReputationUpdater, updater})
		}
		for _, g := range grants {
			if err := e.access.Grant(owner, g.cap, g.account); err != nil {
				return fmt.Errorf("grant %s to %s: %w", g.cap, g.account, err)
			}
		}
		persisted, err := e.loadPauses()
		if err != nil {
			return err
		}
		for module, paused := range cfg.Pauses {
			module = strings.ToLower(strings.TrimSpace(module))
			if !IsKnownModule(module) {
				return fmt.Errorf("%w: %s", ErrUnknownModule, module)
			}
			if _, ok := persisted[module]; !ok {
				persisted[module] = paused
			}
		}
		if err := e.savePauses(persisted); err != nil {
			return err
		}
		e.afterCommit = append(e.afterCommit, func() {
			for module, paused := range persisted {
				e.pauses.Set(module, paused)
			}
		})
		return nil
	})
}

func (e *Engine) loadPauses() (map[string]bool, error) {
	var entries []pauseEntry
	if _, err := e.state.KVGet([]byte(pausesKeyName), &entries); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(entries))
	for _, entry := range entries {
		out[entry.Module] = entry.Paused
	}
	return out, nil
}

func (e *Engine) savePauses(snapshot map[string]bool) error {
	entries := make([]pauseEntry, 0, len(Modules))
	for _, module := range Modules {
		entries = append(entries, pauseEntry{Module: module, Paused: snapshot[module]})
	}
	return e.state.KVPut([]byte(pausesKeyName), entries)
}

// SetNowFunc overrides the clock of every module. Primarily used by tests.
func (e *Engine) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reputation.SetNowFunc(now)
	e.trust.SetNowFunc(now)
	e.lending.SetNowFunc(now)
	e.bank.SetNowFunc(now)
}

// SetSettlement replaces the payout backend used by the loan book. The
// default backend is the internal bank ledger.
func (e *Engine) SetSettlement(settlement lending.Settlement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if settlement == nil {
		settlement = e.bank
	}
	e.lending.SetPorts(e.reputation, e.trust, settlement, e.access)
}

// SetLogger overrides the logger used for rollbacks and transfer failures.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.logger = logger.With(slog.String("component", "protocol"))
}

// Events exposes the committed event stream.
func (e *Engine) Events() *events.Stream { return e.stream }

// execute runs fn inside a journal while holding the writer lock. Errors roll
// back every staged write and drop the buffered events.
func (e *Engine) execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(inCallKey{}) != nil {
		return nativecommon.ErrReentrantCall
	}
	ctx, span := e.tracer.Start(ctx, "protocol."+op, trace.WithAttributes(attribute.String("operation", op)))
	defer span.End()
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.runJournal(context.WithValue(ctx, inCallKey{}, op), op, fn)
	e.metrics.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (e *Engine) runJournal(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := e.state.Begin(); err != nil {
		return err
	}
	e.buffer.Reset()
	e.afterCommit = nil
	if err := fn(ctx); err != nil {
		e.state.Rollback()
		e.buffer.Reset()
		e.afterCommit = nil
		if errors.Is(err, lending.ErrTransferFailed) {
			e.logger.Error("settlement transfer failed; operation rolled back",
				slog.String("operation", op), slog.Any("error", err))
		} else {
			e.logger.Debug("operation rolled back", slog.String("operation", op), slog.Any("error", err))
		}
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.buffer.Reset()
		e.afterCommit = nil
		e.logger.Error("commit failed", slog.String("operation", op), slog.Any("error", err))
		return err
	}
	for _, apply := range e.afterCommit {
		apply()
	}
	e.afterCommit = nil
	for _, evt := range e.buffer.Drain() {
		e.observeEvent(evt)
		e.stream.Emit(evt)
		observability.Events().RecordPublished(evt.EventType())
	}
	if pool, err := e.lending.Pool(); err == nil {
		e.metrics.SetPool(pool.TotalLiquidity, pool.TotalBorrowed, pool.InterestEarned)
	}
	return nil
}

func (e *Engine) observeEvent(evt events.Event) {
	switch v := evt.(type) {
	case reputation.Updated:
		e.metrics.ObserveReputationDelta(int64(v.Score) - int64(v.Previous))
	case lending.LoanRequested:
		e.metrics.RecordLoan("originated")
	case lending.LoanRepaid:
		if v.Completed {
			e.metrics.RecordLoan("repaid")
		}
	case lending.LoanDefaulted:
		e.metrics.RecordLoan("defaulted")
	case trust.CircleSlashed:
		e.metrics.RecordSlash()
	}
}
