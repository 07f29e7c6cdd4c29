package repository

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned by Get methods when the document does not exist.
var ErrNotFound = goerr.New("not found")

// Repository stores the merchant catalog, reference cases and exported
// conversation histories. The pipeline only reads merchants and cases.
type Repository interface {
	// ListMerchants returns the whole merchant catalog
	ListMerchants(ctx context.Context) ([]*model.Merchant, error)

	// GetMerchant retrieves a merchant by ID
	GetMerchant(ctx context.Context, id model.MerchantID) (*model.Merchant, error)

	// PutMerchant saves a merchant, replacing any existing one with the same ID
	PutMerchant(ctx context.Context, merchant *model.Merchant) error

	// ListCases returns every reference case
	ListCases(ctx context.Context) ([]*model.Case, error)

	// PutCase saves a reference case
	PutCase(ctx context.Context, c *model.Case) error

	// PutHistory saves conversation history metadata
	PutHistory(ctx context.Context, history *model.History) error

	// GetHistory retrieves conversation history metadata by ID
	GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error)
}
