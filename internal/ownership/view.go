// Package ownership derives the tokens owned by the connected account and
// keeps their decoded metadata current.
package ownership

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mintdesk/mintdesk/internal/contract"
	"github.com/mintdesk/mintdesk/internal/metadata"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

const defaultConcurrency = 8

// AccountSource supplies the connected account.
type AccountSource interface {
	Account() (model.Address, bool)
	Subscribe() (<-chan model.Address, func())
}

// Snapshot is a consistent copy of the view.
type Snapshot struct {
	Account    model.Address
	Tokens     []model.TokenMetadata
	Generation uint64
	UpdatedAt  time.Time
}

// View holds the owned token set and per-token metadata.
type View struct {
	reader      contract.Reader
	accounts    AccountSource
	decoder     *metadata.Decoder
	concurrency int
	logger      *slog.Logger
	metrics     metrics.Recorder
	refreshCh   chan struct{}

	mu         sync.RWMutex
	generation uint64
	account    model.Address
	tokens     []model.TokenID
	meta       map[model.TokenID]model.TokenMetadata
	updatedAt  time.Time
}

// NewView creates a View. concurrency bounds parallel tokenURI reads.
func NewView(reader contract.Reader, accounts AccountSource, decoder *metadata.Decoder, concurrency int, logger *slog.Logger, recorder metrics.Recorder) *View {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if decoder == nil {
		decoder = metadata.NewDecoder(logger, recorder)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &View{
		reader:      reader,
		accounts:    accounts,
		decoder:     decoder,
		concurrency: concurrency,
		logger:      logger.With("component", "ownership_view"),
		metrics:     recorder,
		refreshCh:   make(chan struct{}, 1),
		meta:        make(map[model.TokenID]model.TokenMetadata),
	}
}

// DeriveOwnedTokens enumerates the tokens owned by account. An empty account
// yields an empty set without touching the contract. Enumeration failures are
// logged and yield an empty set; callers cannot tell them from owning nothing.
func (v *View) DeriveOwnedTokens(ctx context.Context, account model.Address) []model.TokenID {
	if account == "" {
		return []model.TokenID{}
	}

	ids, err := v.reader.TokensOfOwner(ctx, account)
	if err != nil {
		v.metrics.IncEnumerationFailure()
		v.logger.Warn("token enumeration failed",
			"account", account.String(),
			"error", err,
		)
		return []model.TokenID{}
	}

	tokens := make([]model.TokenID, 0, len(ids))
	seen := make(map[model.TokenID]struct{}, len(ids))
	for _, n := range ids {
		id := model.TokenIDFromBig(n)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tokens = append(tokens, id)
	}
	return tokens
}

// Refresh re-derives the owned set for the current account and fetches
// metadata for every member. It returns once all fetches have resolved.
// Results belonging to a superseded derivation are discarded.
func (v *View) Refresh(ctx context.Context) {
	start := time.Now()

	// The account is read under the same lock that numbers the derivation so
	// the newest generation always carries the newest account.
	v.mu.Lock()
	v.generation++
	gen := v.generation
	account, _ := v.accounts.Account()
	v.mu.Unlock()

	tokens := v.DeriveOwnedTokens(ctx, account)
	if !v.applyTokens(gen, account, tokens) {
		v.logger.Debug("discarding stale enumeration", "account", account.String())
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for _, id := range tokens {
		id := id
		g.Go(func() error {
			v.fetchMetadata(gctx, gen, id)
			return nil
		})
	}
	_ = g.Wait()

	v.metrics.ObserveRefreshDuration(time.Since(start))
}

// RequestRefresh asks Run to re-derive. It never blocks; requests made while
// one is already queued are coalesced.
func (v *View) RequestRefresh() {
	select {
	case v.refreshCh <- struct{}{}:
	default:
	}
}

// Run re-derives on every account change and refresh request until ctx is
// done. Each derivation runs in its own goroutine so a newer one can supersede
// a slow predecessor.
func (v *View) Run(ctx context.Context) {
	changes, cancel := v.accounts.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Refresh(ctx)
		}()
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case account := <-changes:
			v.logger.Info("account changed", "account", account.String())
			refresh()
		case <-v.refreshCh:
			refresh()
		}
	}
}

// Snapshot returns the current account, owned tokens in enumeration order and
// their metadata.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tokens := make([]model.TokenMetadata, 0, len(v.tokens))
	for _, id := range v.tokens {
		tokens = append(tokens, v.meta[id])
	}
	return Snapshot{
		Account:    v.account,
		Tokens:     tokens,
		Generation: v.generation,
		UpdatedAt:  v.updatedAt,
	}
}

// Token returns the metadata of one owned token.
func (v *View) Token(id model.TokenID) (model.TokenMetadata, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	meta, ok := v.meta[id]
	return meta, ok
}

func (v *View) applyTokens(gen uint64, account model.Address, tokens []model.TokenID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		return false
	}

	meta := make(map[model.TokenID]model.TokenMetadata, len(tokens))
	for _, id := range tokens {
		if prev, ok := v.meta[id]; ok && v.account == account {
			meta[id] = prev
			continue
		}
		meta[id] = model.TokenMetadata{TokenID: id}
	}

	v.account = account
	v.tokens = tokens
	v.meta = meta
	v.updatedAt = time.Now()
	return true
}

func (v *View) fetchMetadata(ctx context.Context, gen uint64, id model.TokenID) {
	n, ok := id.Big()
	if !ok {
		return
	}

	uri, err := v.reader.TokenURI(ctx, n)
	if err != nil {
		v.logger.Warn("tokenURI read failed",
			"token_id", id.String(),
			"error", err,
		)
		return
	}

	meta := v.decoder.DecodeTokenMetadata(id, &uri)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return
	}
	if _, member := v.meta[id]; !member {
		return
	}
	v.meta[id] = meta
	v.updatedAt = time.Now()
}
