package repository

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Memory is an in-process Repository, used for local runs with a YAML
// catalog and for tests.
type Memory struct {
	mu        sync.RWMutex
	merchants map[model.MerchantID]*model.Merchant
	cases     map[model.CaseID]*model.Case
	histories map[model.HistoryID]*model.History
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		merchants: make(map[model.MerchantID]*model.Merchant),
		cases:     make(map[model.CaseID]*model.Case),
		histories: make(map[model.HistoryID]*model.History),
	}
}

// Catalog is the YAML document read by LoadYAML.
type Catalog struct {
	Merchants []*model.Merchant `yaml:"merchants"`
	Cases     []*model.Case     `yaml:"cases"`
}

// LoadYAML reads a catalog file into a new Memory repository.
func LoadYAML(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read catalog file", goerr.V("path", path))
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, goerr.Wrap(err, "failed to parse catalog file", goerr.V("path", path))
	}

	repo := NewMemory()
	ctx := context.Background()
	for _, m := range catalog.Merchants {
		if err := repo.PutMerchant(ctx, m); err != nil {
			return nil, goerr.Wrap(err, "invalid merchant in catalog", goerr.V("path", path))
		}
	}
	for _, c := range catalog.Cases {
		if err := repo.PutCase(ctx, c); err != nil {
			return nil, goerr.Wrap(err, "invalid case in catalog", goerr.V("path", path))
		}
	}
	return repo, nil
}

func (r *Memory) ListMerchants(ctx context.Context) ([]*model.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merchants := make([]*model.Merchant, 0, len(r.merchants))
	for _, m := range r.merchants {
		cp := *m
		merchants = append(merchants, &cp)
	}
	sort.Slice(merchants, func(i, j int) bool { return merchants[i].ID < merchants[j].ID })
	return merchants, nil
}

func (r *Memory) GetMerchant(ctx context.Context, id model.MerchantID) (*model.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.merchants[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "merchant not found", goerr.V("merchant_id", id))
	}
	cp := *m
	return &cp, nil
}

func (r *Memory) PutMerchant(ctx context.Context, merchant *model.Merchant) error {
	if merchant == nil || merchant.ID == "" {
		return goerr.New("merchant ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *merchant
	r.merchants[merchant.ID] = &cp
	return nil
}

func (r *Memory) ListCases(ctx context.Context) ([]*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cases := make([]*model.Case, 0, len(r.cases))
	for _, c := range r.cases {
		cp := *c
		cases = append(cases, &cp)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func (r *Memory) PutCase(ctx context.Context, c *model.Case) error {
	if c == nil || c.ID == "" {
		return goerr.New("case ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *Memory) PutHistory(ctx context.Context, history *model.History) error {
	if history == nil || history.ID == "" {
		return goerr.New("history ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := *history
	meta.Turns = nil
	r.histories[history.ID] = &meta
	return nil
}

func (r *Memory) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.histories[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "history not found", goerr.V("history_id", id))
	}
	cp := *h
	return &cp, nil
}
