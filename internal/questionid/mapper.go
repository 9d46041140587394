// Package questionid maps numeric question ids to short random aliases
// used in share links, so links do not reveal how many questions exist.
package questionid

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"go.uber.org/zap"
)

const (
	// StorageKey holds the whole mapping as one JSON document
	StorageKey = "shadow_question_id_mapping"

	// AliasLength is the length of generated aliases
	AliasLength = 12

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// largest multiple of len(alphabet) below 256, for unbiased sampling
	sampleLimit = 256 - 256%len(alphabet)

	maxAliasAttempts = 16
)

var errAliasSpace = errors.New("could not generate an unused alias")

// Mapper keeps numeric id <-> alias mappings in a Storage
type Mapper struct {
	store  storage.Storage
	logger *zap.Logger
	random io.Reader

	mu      sync.Mutex
	loaded  bool
	forward map[uint64]string
	reverse map[string]uint64
}

// Option configures a Mapper
type Option func(*Mapper)

// WithRandom replaces crypto/rand as the alias source
func WithRandom(r io.Reader) Option {
	return func(m *Mapper) {
		m.random = r
	}
}

// New creates a Mapper. The mapping is loaded on first use or by Init.
func New(store storage.Storage, logger *zap.Logger, opts ...Option) *Mapper {
	m := &Mapper{
		store:   store,
		logger:  logger,
		random:  rand.Reader,
		forward: make(map[uint64]string),
		reverse: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the persisted mapping. An unreadable document is logged and
// treated as empty.
func (m *Mapper) Init(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)
}

func (m *Mapper) loadLocked(ctx context.Context) {
	m.loaded = true

	raw, err := m.store.GetItem(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("failed to load question id mapping", zap.Error(err))
		}
		return
	}

	var doc map[string]string
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		m.logger.Warn("ignoring malformed question id mapping", zap.Error(err))
		return
	}

	forward := make(map[uint64]string, len(doc))
	reverse := make(map[string]uint64, len(doc))
	for k, alias := range doc {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil || alias == "" {
			m.logger.Warn("skipping invalid question id mapping entry", zap.String("id", k))
			continue
		}
		forward[id] = alias
		reverse[alias] = id
	}
	m.forward = forward
	m.reverse = reverse
}

func (m *Mapper) ensureLoadedLocked(ctx context.Context) {
	if !m.loaded {
		m.loadLocked(ctx)
	}
}

// Alias returns the alias for id, creating and persisting one if needed
func (m *Mapper) Alias(ctx context.Context, id uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoadedLocked(ctx)

	if alias, ok := m.forward[id]; ok {
		return alias, nil
	}

	var alias string
	for attempt := 0; ; attempt++ {
		if attempt == maxAliasAttempts {
			return "", errAliasSpace
		}
		candidate, err := GenerateAlias(m.random, AliasLength)
		if err != nil {
			return "", err
		}
		if _, taken := m.reverse[candidate]; !taken {
			alias = candidate
			break
		}
	}

	m.forward[id] = alias
	m.reverse[alias] = id
	m.saveLocked(ctx)
	return alias, nil
}

// Resolve returns the numeric id behind alias
func (m *Mapper) Resolve(ctx context.Context, alias string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoadedLocked(ctx)

	id, ok := m.reverse[alias]
	return id, ok
}

// Has reports whether alias is known
func (m *Mapper) Has(ctx context.Context, alias string) bool {
	_, ok := m.Resolve(ctx, alias)
	return ok
}

// Clear drops every mapping and removes the persisted document
func (m *Mapper) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forward = make(map[uint64]string)
	m.reverse = make(map[string]uint64)
	m.loaded = true

	if err := m.store.RemoveItem(ctx, StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to clear question id mapping: %w", err)
	}
	return nil
}

func (m *Mapper) saveLocked(ctx context.Context) {
	doc := make(map[string]string, len(m.forward))
	for id, alias := range m.forward {
		doc[strconv.FormatUint(id, 10)] = alias
	}

	data, err := json.Marshal(doc)
	if err != nil {
		m.logger.Warn("failed to encode question id mapping", zap.Error(err))
		return
	}
	if err := m.store.SetItem(ctx, StorageKey, string(data)); err != nil {
		m.logger.Warn("failed to save question id mapping", zap.Error(err))
	}
}

// GenerateAlias draws an alphanumeric string of length n from r
func GenerateAlias(r io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		for _, b := range buf {
			if int(b) >= sampleLimit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
