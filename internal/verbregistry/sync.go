package verbregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Store is the persistence seam SyncService depends on; a concrete
// implementation lives in internal/registrystore (sqlx/lib-pq backed).
// Keeping it as an interface here mirrors the teacher's repository
// pattern (internal/vocabulary.Repository) and lets SyncAll be tested
// with an in-memory fake instead of sqlmock where that is simpler.
type Store interface {
	ExistingYAMLHashes(ctx context.Context) (map[string]string, error)
	UpsertContract(ctx context.Context, contract *VerbContract) error
	LogSync(ctx context.Context, result *SyncResult) error
}

// SyncResult reports the outcome of one SyncAll invocation (spec §4.2
// exposed interface).
type SyncResult struct {
	VerbsAdded     int
	VerbsUpdated   int
	VerbsUnchanged int
	VerbsRemoved   int
	DurationMS     int64
	SourceHash     string
}

// SyncService synchronizes an in-memory Registry to the durable Store
// using hash-based change detection (spec §4.2 "Sync").
type SyncService struct {
	store Store
	now   func() time.Time
}

// NewSyncService constructs a SyncService backed by store.
func NewSyncService(store Store) *SyncService {
	return &SyncService{store: store, now: time.Now}
}

// HashVerb computes the stable content hash of a single verb. Exposed so
// the "verbs check" CLI command (§6.4) can compare a YAML source tree
// against persisted state without performing a full sync.
func HashVerb(verb *RuntimeVerb) string {
	h := sha256.New()

	h.Write([]byte(verb.Domain))
	h.Write([]byte(verb.Verb))
	h.Write([]byte(verb.Description))

	switch verb.Behavior.Kind {
	case BehaviorCRUD:
		fmt.Fprintf(h, "crud:%s", verb.Behavior.CRUDOperation)
	case BehaviorPlugin:
		fmt.Fprintf(h, "plugin:%s", verb.Behavior.Handler)
	case BehaviorGraphQuery:
		fmt.Fprintf(h, "graph_query:%s", verb.Behavior.GraphOperation)
	}

	for _, arg := range verb.Args {
		h.Write([]byte(arg.Name))
		h.Write([]byte(arg.Type))
		if arg.Required {
			h.Write([]byte{'1'})
		} else {
			h.Write([]byte{'0'})
		}
	}

	if verb.Produces != nil {
		h.Write([]byte(verb.Produces.ProducedType))
		h.Write([]byte(verb.Produces.Subtype))
	}
	for _, c := range verb.Consumes {
		h.Write([]byte(c.ConsumedType))
		if c.Required {
			h.Write([]byte{'1'})
		} else {
			h.Write([]byte{'0'})
		}
	}

	if verb.Lifecycle != nil {
		h.Write([]byte(verb.Lifecycle.EntityArg))
		for _, s := range verb.Lifecycle.RequiresStates {
			h.Write([]byte(s))
		}
		h.Write([]byte(verb.Lifecycle.TransitionsTo))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// HashRegistry returns a map of FQN -> HashVerb for every verb in reg, for
// CI parity checks.
func HashRegistry(reg *Registry) map[string]string {
	out := make(map[string]string)
	for _, v := range reg.AllVerbs() {
		out[v.FullName()] = HashVerb(v)
	}
	return out
}

// sourceHash hashes the sorted concatenation of all per-verb hashes, used
// only for logging/CI-parity (spec §4.2 step 5).
func sourceHash(reg *Registry) string {
	hashes := HashRegistry(reg)
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(hashes[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SyncAll synchronizes every verb in reg to the store, updating only verbs
// whose content hash changed (spec §4.2 "Sync (hash-based change
// detection)").
func (s *SyncService) SyncAll(ctx context.Context, reg *Registry) (*SyncResult, error) {
	start := s.now()

	existing, err := s.store.ExistingYAMLHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing verb hashes: %w", err)
	}

	var added, updated, unchanged int
	seen := make(map[string]struct{}, len(reg.AllVerbs()))

	for _, verb := range reg.AllVerbs() {
		fqn := verb.FullName()
		seen[fqn] = struct{}{}
		hash := HashVerb(verb)

		prior, existed := existing[fqn]
		switch {
		case existed && prior == hash:
			unchanged++
			continue
		case existed:
			updated++
		default:
			added++
		}

		contract := CompileVerbContract(verb)
		contract.YAMLHash = hash
		if err := s.store.UpsertContract(ctx, contract); err != nil {
			return nil, fmt.Errorf("upserting contract for %s: %w", fqn, err)
		}
	}

	removed := 0
	for fqn := range existing {
		if _, ok := seen[fqn]; !ok {
			removed++
		}
	}

	result := &SyncResult{
		VerbsAdded:     added,
		VerbsUpdated:   updated,
		VerbsUnchanged: unchanged,
		VerbsRemoved:   removed,
		DurationMS:     s.now().Sub(start).Milliseconds(),
		SourceHash:     sourceHash(reg),
	}

	if err := s.store.LogSync(ctx, result); err != nil {
		return nil, fmt.Errorf("logging sync result: %w", err)
	}

	return result, nil
}
