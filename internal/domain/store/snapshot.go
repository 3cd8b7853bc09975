package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// SnapshotKey is the KV key the Persister writes to by default
const SnapshotKey = "store/snapshot"

const snapshotVersion = 1

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

type snapshot struct {
	Version int               `json:"version"`
	Records []json.RawMessage `json:"records"`
}

// RestoreReport counts what Restore kept and dropped
type RestoreReport struct {
	Restored int     `json:"restored"`
	Skipped  int     `json:"skipped"`
	Errors   []error `json:"-"`
}

// Snapshot encodes every script in insertion order
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	doc := snapshot{Version: snapshotVersion, Records: make([]json.RawMessage, 0, len(s.order))}
	for _, rec := range s.order {
		raw, err := sonic.Marshal(rec.script)
		if err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("encode script %s: %w", rec.script.ID, err)
		}
		doc.Records = append(doc.Records, raw)
	}
	s.mu.RUnlock()

	data, err := sonic.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return encoder.EncodeAll(data, nil), nil
}

// Restore replaces the store contents with a snapshot. Records that do not
// decode or fail validation are skipped and reported; the rest load.
func (s *Store) Restore(data []byte) (RestoreReport, error) {
	var report RestoreReport

	plain, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return report, fmt.Errorf("decompress snapshot: %w", err)
	}
	var doc snapshot
	if err := sonic.Unmarshal(plain, &doc); err != nil {
		return report, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return report, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	records := make([]*record, 0, len(doc.Records))
	seenID := make(map[string]bool)
	seenKey := make(map[types.Key]bool)
	for i, raw := range doc.Records {
		var sc types.Script
		if err := sonic.Unmarshal(raw, &sc); err != nil {
			report.skip(fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if err := validate(&sc); err != nil {
			report.skip(fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if seenID[sc.ID] || seenKey[sc.Key()] {
			report.skip(fmt.Errorf("record %d: duplicate script %s", i, sc.Key()))
			continue
		}
		seenID[sc.ID] = true
		seenKey[sc.Key()] = true
		records = append(records, &record{script: &sc, rules: s.compile(&sc)})
	}

	s.mu.Lock()
	s.order = nil
	s.byID = make(map[string]*record, len(records))
	s.byKey = make(map[types.Key]*record, len(records))
	for _, rec := range records {
		s.insertLocked(rec)
	}
	s.mu.Unlock()

	report.Restored = len(records)
	for _, err := range report.Errors {
		s.log.Warn("Skipped snapshot record", zap.Error(err))
	}
	return report, nil
}

func (r *RestoreReport) skip(err error) {
	r.Skipped++
	r.Errors = append(r.Errors, err)
}

func validate(sc *types.Script) error {
	switch {
	case sc.ID == "":
		return errors.New("missing id")
	case sc.Name == "":
		return errors.New("missing name")
	case !sc.RunAt.Valid():
		return fmt.Errorf("invalid run-at %q", sc.RunAt)
	}
	return nil
}

// Persister writes and reads store snapshots through a KV backend. The
// store never persists on its own; callers decide when. Saves are
// serialised so a snapshot is never overwritten by an older one.
type Persister struct {
	mu  sync.Mutex
	kv  persistence.KV
	key string
}

// NewPersister creates a persister writing under SnapshotKey
func NewPersister(kv persistence.KV) *Persister {
	return &Persister{kv: kv, key: SnapshotKey}
}

// Save writes a snapshot of st. The snapshot is taken and written under
// one lock, so the last write always reflects the latest commit.
func (p *Persister) Save(ctx context.Context, st *Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := st.Snapshot()
	if err != nil {
		return err
	}
	if err := p.kv.Put(ctx, p.key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load restores st from the last saved snapshot. A missing snapshot is an
// empty store, not an error.
func (p *Persister) Load(ctx context.Context, st *Store) (RestoreReport, error) {
	data, err := p.kv.Get(ctx, p.key)
	if errors.Is(err, persistence.ErrNotFound) {
		return RestoreReport{}, nil
	}
	if err != nil {
		return RestoreReport{}, fmt.Errorf("load snapshot: %w", err)
	}
	return st.Restore(data)
}
