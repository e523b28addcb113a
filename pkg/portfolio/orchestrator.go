package portfolio

import (
	"context"
	"errors"
	"sync"

	"ethfolio/pkg/address"
	"ethfolio/pkg/models"

	"go.uber.org/zap"
)

// State is the lifecycle state of the viewed portfolio.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// ErrSuperseded is returned by Load when a newer request replaced it before it finished.
var ErrSuperseded = errors.New("load superseded by a newer request")

var (
	errNothingToRetry = errors.New("no previous request to retry")
	errNoAddress      = errors.New("no address is being viewed")
)

// Failure describes why the last load did not complete.
type Failure struct {
	Kind    models.FailureKind `json:"kind"`
	Message string             `json:"message"`
	Err     error              `json:"-"`
}

// Snapshot is everything the presentation layer shows for one load.
type Snapshot struct {
	Generation uint64                `json:"generation"`
	Address    string                `json:"address"`
	Network    models.Network        `json:"network"`
	State      State                 `json:"state"`
	Balance    string                `json:"balance"`
	Tokens     []models.TokenHolding `json:"tokens"`
	NFTs       []models.NFTItem      `json:"nfts"`
	Failure    *Failure              `json:"failure,omitempty"`
}

// Loading reports whether a load sequence is in flight.
func (s Snapshot) Loading() bool {
	return s.State == StateLoading
}

// Options tunes the load sequence.
type Options struct {
	BalanceDecimals     int32
	MetadataConcurrency int
}

type request struct {
	address string
	network models.Network
}

// Orchestrator runs the balance, token and NFT loads whenever the viewed
// address or network changes, and publishes the resulting snapshots.
// Every request gets a generation; results of a superseded generation are discarded.
type Orchestrator struct {
	dialer Dialer
	opts   Options
	logger *zap.Logger

	mu          sync.RWMutex
	snapshot    Snapshot
	generation  uint64
	last        *request
	cancel      context.CancelFunc
	subscribers []Subscriber

	wg sync.WaitGroup
}

// New creates an idle Orchestrator.
func New(dialer Dialer, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BalanceDecimals <= 0 {
		opts.BalanceDecimals = 4
	}
	return &Orchestrator{
		dialer: dialer,
		opts:   opts,
		logger: logger.Named("portfolio"),
		snapshot: Snapshot{
			State:  StateIdle,
			Tokens: []models.TokenHolding{},
			NFTs:   []models.NFTItem{},
		},
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (o *Orchestrator) Subscribe() Subscriber {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(Subscriber, 100)
	o.subscribers = append(o.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (o *Orchestrator) Unsubscribe(ch Subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, sub := range o.subscribers {
		if sub == ch {
			o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (o *Orchestrator) notify(event Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, sub := range o.subscribers {
		select {
		case sub <- event:
		default:
			o.logger.Warn("Dropping event for slow subscriber", zap.String("type", string(event.Type)))
		}
	}
}

// Snapshot returns the current snapshot.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Current returns the address and network of the last accepted request.
func (o *Orchestrator) Current() (string, models.Network, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return "", "", false
	}
	return o.last.address, o.last.network, true
}

// View validates addr and starts loading it on network in the background.
// An invalid address is rejected with an input LoadError and leaves the current snapshot untouched.
func (o *Orchestrator) View(addr string, network models.Network) error {
	req, err := o.validate(addr, network)
	if err != nil {
		return err
	}
	gen, ctx := o.begin(req)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.run(ctx, gen, req)
	}()
	return nil
}

// Load is the synchronous form of View. It returns ErrSuperseded when a newer
// request replaced this one before it finished.
func (o *Orchestrator) Load(ctx context.Context, addr string, network models.Network) (Snapshot, error) {
	req, err := o.validate(addr, network)
	if err != nil {
		return Snapshot{}, err
	}
	gen, runCtx := o.begin(req)

	stop := context.AfterFunc(ctx, o.cancelGeneration(gen))
	defer stop()

	return o.run(runCtx, gen, req)
}

// SetAddress views addr on the current network.
func (o *Orchestrator) SetAddress(addr string) error {
	network := models.EthMainnet
	if _, n, ok := o.Current(); ok {
		network = n
	}
	return o.View(addr, network)
}

// SetNetwork views the current address on network.
func (o *Orchestrator) SetNetwork(network models.Network) error {
	addr, _, ok := o.Current()
	if !ok {
		return models.NewLoadError(models.FailureInput, "set network", errNoAddress)
	}
	return o.View(addr, network)
}

// Retry re-runs the last accepted request.
func (o *Orchestrator) Retry() error {
	addr, network, ok := o.Current()
	if !ok {
		return models.NewLoadError(models.FailureInput, "retry", errNothingToRetry)
	}
	o.logger.Info("Retrying portfolio load", zap.String("address", addr), zap.String("network", string(network)))
	return o.View(addr, network)
}

// Stop cancels the in-flight load and waits for background loads to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Wait blocks until all background loads have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) validate(addr string, network models.Network) (request, error) {
	normalized, err := address.Normalize(addr)
	if err != nil {
		collectLoad("rejected", string(network))
		o.logger.Info("Rejected invalid address", zap.String("input", addr))
		return request{}, err
	}
	parsed, err := models.ParseNetwork(string(network))
	if err != nil {
		collectLoad("rejected", string(network))
		return request{}, models.NewLoadError(models.FailureInput, "validate network", err)
	}
	return request{address: normalized, network: parsed}, nil
}

// begin starts a new generation: it supersedes the in-flight load and publishes
// a loading snapshot for req with empty lists.
func (o *Orchestrator) begin(req request) (uint64, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.generation++
	gen := o.generation
	o.cancel = cancel
	o.last = &req
	o.snapshot = Snapshot{
		Generation: gen,
		Address:    req.address,
		Network:    req.network,
		State:      StateLoading,
		Tokens:     []models.TokenHolding{},
		NFTs:       []models.NFTItem{},
	}
	snap := o.snapshot
	o.mu.Unlock()

	o.logger.Info("Loading portfolio",
		zap.Uint64("generation", gen),
		zap.String("address", req.address),
		zap.String("network", string(req.network)))
	o.notify(Event{Type: EventStateChanged, Data: snap})
	return gen, ctx
}

func (o *Orchestrator) cancelGeneration(gen uint64) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation == gen && o.cancel != nil {
			o.cancel()
		}
	}
}

// run executes balance, tokens and NFTs strictly in that order.
func (o *Orchestrator) run(ctx context.Context, gen uint64, req request) (Snapshot, error) {
	snap := Snapshot{
		Generation: gen,
		Address:    req.address,
		Network:    req.network,
	}

	ds, err := o.dialer.Dial(ctx, req.network)
	if err != nil {
		return o.fail(gen, snap, upstreamErr("dial", err))
	}
	defer ds.Close()

	snap.Balance, err = LoadBalance(ctx, ds, req.address, o.opts.BalanceDecimals)
	if err != nil {
		return o.fail(gen, snap, err)
	}

	snap.Tokens, err = LoadTokens(ctx, ds, req.address, o.opts.MetadataConcurrency)
	if err != nil {
		return o.fail(gen, snap, err)
	}

	snap.NFTs, err = LoadNFTs(ctx, ds, req.network, req.address)
	if err != nil {
		return o.fail(gen, snap, err)
	}

	snap.State = StateLoaded
	return o.commit(gen, snap, nil)
}

func (o *Orchestrator) fail(gen uint64, snap Snapshot, err error) (Snapshot, error) {
	kind := models.KindOf(err)
	if kind == "" {
		kind = models.FailureUpstream
	}
	snap.State = StateFailed
	snap.Balance = ""
	snap.Tokens = []models.TokenHolding{}
	snap.NFTs = []models.NFTItem{}
	snap.Failure = &Failure{Kind: kind, Message: err.Error(), Err: err}
	return o.commit(gen, snap, err)
}

// commit publishes snap if gen is still current and discards it otherwise.
func (o *Orchestrator) commit(gen uint64, snap Snapshot, loadErr error) (Snapshot, error) {
	o.mu.Lock()
	if gen != o.generation {
		current := o.generation
		o.mu.Unlock()

		collectLoad("discarded", string(snap.Network))
		o.logger.Debug("Discarding superseded load",
			zap.Uint64("generation", gen),
			zap.Uint64("current", current),
			zap.String("address", snap.Address))
		o.notify(Event{Type: EventLoadDiscarded, Data: snap})
		return snap, ErrSuperseded
	}
	o.snapshot = snap
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()

	if loadErr != nil {
		collectLoad("failed", string(snap.Network))
		o.logger.Error("Portfolio load failed",
			zap.Uint64("generation", gen),
			zap.String("address", snap.Address),
			zap.String("network", string(snap.Network)),
			zap.String("kind", string(snap.Failure.Kind)),
			zap.Error(loadErr))
	} else {
		collectLoad("loaded", string(snap.Network))
		o.logger.Info("Portfolio loaded",
			zap.Uint64("generation", gen),
			zap.String("address", snap.Address),
			zap.String("network", string(snap.Network)),
			zap.Int("tokens", len(snap.Tokens)),
			zap.Int("nfts", len(snap.NFTs)))
	}
	o.notify(Event{Type: EventStateChanged, Data: snap})
	return snap, loadErr
}
