package entity

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	ExactConfidence   = 0.95
	FuzzyConfidence   = 0.8
	ContextConfidence = 0.7
)

// Catalog is the read-only merchant list the resolver matches against.
type Catalog interface {
	ListMerchants(ctx context.Context) ([]*model.Merchant, error)
}

type Resolver struct {
	catalog Catalog
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve identifies the merchant a query is about. A merchant named in the
// query wins; otherwise the subject already in focus is carried over with
// reduced confidence. An unresolved query yields Matched=false and zero
// confidence, which is a valid result rather than an error.
func (r *Resolver) Resolve(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.EntityResult, error) {
	merchants, err := r.catalog.ListMerchants(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list merchants for entity resolution")
	}

	if m, kind := Match(query, merchants); m != nil {
		conf := FuzzyConfidence
		if kind == MatchExact {
			conf = ExactConfidence
		}
		logging.From(ctx).Debug("entity resolved from query",
			"merchant_id", m.ID, "match", kind.String())
		return model.NewEntityResult(m.ID, m.Name, conf, true), nil
	}

	if convCtx.HasSubject() {
		return model.NewEntityResult(convCtx.MerchantID, convCtx.MerchantName, ContextConfidence, true), nil
	}

	return model.NewEntityResult("", "", 0, false), nil
}
