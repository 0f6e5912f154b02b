// SPDX-License-Identifier: MIT

package learner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/cache"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/privacy"
	"github.com/vrlearn/adaptd/internal/store"
)

// ErrUnknownLearner is returned by purge for a learner never seen.
var ErrUnknownLearner = errors.New("learner: unknown learner")

// statsSmoothing is the EWMA factor for dynamic stats.
const statsSmoothing = 0.2

// DynamicStats are the moving averages kept per learner.
type DynamicStats struct {
	EventsSeen     int64     `json:"events_seen"`
	MeanSignal     float64   `json:"mean_signal"`
	MeanConfidence float64   `json:"mean_confidence"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// Record is the in-memory learner record. The raw learner ID stays
// inside the registry; everything persisted or emitted uses the
// anonymised ID.
type Record struct {
	learnerID    string
	AnonymisedID string
	Profile      StaticProfile
	Stats        DynamicStats
}

// Config wires the registry's collaborators.
type Config struct {
	Hasher    *privacy.Hasher
	Cipher    *privacy.Cipher
	Store     store.Store
	Cache     cache.Cache
	Audit     *audit.Logger
	Clock     clock.Clock
	Retention time.Duration // retention_until horizon for stored blocks
	TokenTTL  time.Duration // anonymised-id cache lifetime

	// DisableAnonymisation passes learner IDs through as their own
	// tokens. Only legal when FERPA compliance mode is off; config
	// validation enforces the coupling.
	DisableAnonymisation bool
}

// Registry owns all learner records and serialises access: at any
// instant at most one pipeline holds the handle for a given learner.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	sems    map[string]chan struct{}

	hasher    *privacy.Hasher
	cipher    *privacy.Cipher
	store     store.Store
	cache     cache.Cache
	audit     *audit.Logger
	clk       clock.Clock
	retention time.Duration
	tokenTTL  time.Duration
	plaintext bool
}

// NewRegistry builds a registry. Cache and clock default to in-process
// implementations when nil.
func NewRegistry(cfg Config) *Registry {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 365 * 24 * time.Hour
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Registry{
		records:   make(map[string]*Record),
		sems:      make(map[string]chan struct{}),
		hasher:    cfg.Hasher,
		cipher:    cfg.Cipher,
		store:     cfg.Store,
		cache:     cfg.Cache,
		audit:     cfg.Audit,
		clk:       cfg.Clock,
		retention: cfg.Retention,
		tokenTTL:  cfg.TokenTTL,
		plaintext: cfg.DisableAnonymisation,
	}
}

// Anonymise returns the stable opaque token for a learner ID. The
// mapping is cached so it stays consistent for the token TTL even when
// the process secret is ephemeral. With anonymisation disabled the
// learner ID is its own token.
func (r *Registry) Anonymise(learnerID string) string {
	if r.plaintext {
		return learnerID
	}
	key := "anon:" + learnerID
	if tok, ok := r.cache.Get(key); ok {
		return tok
	}
	tok := r.hasher.Token(learnerID)
	r.cache.Set(key, tok, r.tokenTTL)
	return tok
}

// Generalise converts a raw profile into its k-anonymous static form
// using the registry's keyed hasher.
func (r *Registry) Generalise(raw RawProfile) StaticProfile {
	return Generalise(raw, r.hasher)
}

// Handle is exclusive ownership of one learner record. It must be
// released; holding it blocks every other pipeline for this learner.
type Handle struct {
	reg      *Registry
	rec      *Record
	released bool
}

// Acquire returns the exclusive handle for learnerID, creating the
// record on first sighting. It blocks until the current holder releases
// or ctx ends.
func (r *Registry) Acquire(ctx context.Context, learnerID string) (*Handle, error) {
	r.mu.Lock()
	rec, ok := r.records[learnerID]
	if !ok {
		rec = &Record{
			learnerID:    learnerID,
			AnonymisedID: r.Anonymise(learnerID),
		}
		r.records[learnerID] = rec
		r.audit.Anonymised(ctx, rec.AnonymisedID, "learner_record", nil)
	}
	sem, ok := r.sems[learnerID]
	if !ok {
		sem = make(chan struct{}, 1)
		r.sems[learnerID] = sem
	}
	r.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return &Handle{reg: r, rec: rec}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns ownership. Releasing twice is a no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.reg.mu.Lock()
	sem := h.reg.sems[h.rec.learnerID]
	h.reg.mu.Unlock()
	if sem != nil {
		<-sem
	}
}

// Token returns the anonymised learner ID.
func (h *Handle) Token() string { return h.rec.AnonymisedID }

// Profile returns the generalised static profile.
func (h *Handle) Profile() StaticProfile { return h.rec.Profile }

// SetProfile installs a generalised profile on the record.
func (h *Handle) SetProfile(p StaticProfile) { h.rec.Profile = p }

// Stats returns the learner's moving averages.
func (h *Handle) Stats() DynamicStats { return h.rec.Stats }

// ObserveEvent folds one processed event into the dynamic stats.
func (h *Handle) ObserveEvent(signal, confidence float64) {
	s := &h.rec.Stats
	if s.EventsSeen == 0 {
		s.MeanSignal = signal
		s.MeanConfidence = confidence
	} else {
		s.MeanSignal += statsSmoothing * (signal - s.MeanSignal)
		s.MeanConfidence += statsSmoothing * (confidence - s.MeanConfidence)
	}
	s.EventsSeen++
	s.LastSeenAt = h.reg.clk.Now()
}

// SaveBlock encrypts v and persists it as the named model block under
// the anonymised token.
func (h *Handle) SaveBlock(ctx context.Context, block string, v any, level privacy.AccessLevel) error {
	now := h.reg.clk.Now()
	env, err := h.reg.cipher.EncryptJSON(v, privacy.Metadata{
		DataType:       block,
		AccessLevel:    level,
		RetentionUntil: now.Add(h.reg.retention),
	})
	if err != nil {
		return fmt.Errorf("learner: encrypt %s block: %w", block, err)
	}
	if err := h.reg.store.PutModelBlock(ctx, &store.ModelBlockRecord{
		LearnerToken: h.rec.AnonymisedID,
		Block:        block,
		Envelope:     env,
		UpdatedAt:    now,
	}); err != nil {
		return fmt.Errorf("learner: persist %s block: %w", block, err)
	}
	h.reg.audit.Encrypted(ctx, h.rec.AnonymisedID, block)
	return nil
}

// LoadBlock fetches and decrypts the named model block into out.
// store.ErrNotFound passes through for callers that treat absence as a
// fresh learner.
func (h *Handle) LoadBlock(ctx context.Context, block string, out any) error {
	rec, err := h.reg.store.GetModelBlock(ctx, h.rec.AnonymisedID, block)
	if err != nil {
		return err
	}
	if err := h.reg.cipher.DecryptJSON(rec.Envelope, out); err != nil {
		return fmt.Errorf("learner: decrypt %s block: %w", block, err)
	}
	h.reg.audit.Decrypted(ctx, h.rec.AnonymisedID, block)
	return nil
}

// Purge removes a learner record and every stored block, writing a
// final audit entry. The caller must not hold the learner's handle.
func (r *Registry) Purge(ctx context.Context, learnerID string) error {
	r.mu.Lock()
	rec, ok := r.records[learnerID]
	if ok {
		delete(r.records, learnerID)
		delete(r.sems, learnerID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownLearner
	}

	n, err := r.store.DeleteLearnerData(ctx, rec.AnonymisedID)
	if err != nil {
		return fmt.Errorf("learner: purge %s: %w", rec.AnonymisedID, err)
	}
	r.cache.Delete("anon:" + learnerID)
	r.audit.Purged(ctx, "learner_models", n)
	return nil
}
