package repository

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionMerchants = "merchants"
	collectionCases     = "cases"
	collectionHistories = "histories"
)

// Firestore implements Repository on Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// New connects to the Firestore database databaseID in projectID.
func New(projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(context.Background(), projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (r *Firestore) ListMerchants(ctx context.Context) ([]*model.Merchant, error) {
	merchants, err := listAll[model.Merchant](ctx, r.client.Collection(collectionMerchants))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list merchants")
	}
	sort.Slice(merchants, func(i, j int) bool { return merchants[i].ID < merchants[j].ID })
	return merchants, nil
}

func (r *Firestore) GetMerchant(ctx context.Context, id model.MerchantID) (*model.Merchant, error) {
	doc, err := r.client.Collection(collectionMerchants).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "merchant not found", goerr.V("merchant_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get merchant", goerr.V("merchant_id", id))
	}

	var merchant model.Merchant
	if err := doc.DataTo(&merchant); err != nil {
		return nil, goerr.Wrap(err, "failed to decode merchant", goerr.V("merchant_id", id))
	}
	return &merchant, nil
}

func (r *Firestore) PutMerchant(ctx context.Context, merchant *model.Merchant) error {
	if merchant.ID == "" {
		return goerr.New("merchant ID is required")
	}
	if _, err := r.client.Collection(collectionMerchants).Doc(string(merchant.ID)).Set(ctx, merchant); err != nil {
		return goerr.Wrap(err, "failed to put merchant", goerr.V("merchant_id", merchant.ID))
	}
	return nil
}

func (r *Firestore) ListCases(ctx context.Context) ([]*model.Case, error) {
	cases, err := listAll[model.Case](ctx, r.client.Collection(collectionCases))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func (r *Firestore) PutCase(ctx context.Context, c *model.Case) error {
	if c.ID == "" {
		return goerr.New("case ID is required")
	}
	if _, err := r.client.Collection(collectionCases).Doc(string(c.ID)).Set(ctx, c); err != nil {
		return goerr.Wrap(err, "failed to put case", goerr.V("case_id", c.ID))
	}
	return nil
}

// PutHistory stores history metadata. Turns are kept in object storage and
// are not written here.
func (r *Firestore) PutHistory(ctx context.Context, history *model.History) error {
	meta := *history
	meta.Turns = nil
	if _, err := r.client.Collection(collectionHistories).Doc(string(history.ID)).Set(ctx, &meta); err != nil {
		return goerr.Wrap(err, "failed to put history", goerr.V("history_id", history.ID))
	}
	return nil
}

func (r *Firestore) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	doc, err := r.client.Collection(collectionHistories).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "history not found", goerr.V("history_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("history_id", id))
	}

	var history model.History
	if err := doc.DataTo(&history); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history", goerr.V("history_id", id))
	}
	return &history, nil
}

func listAll[T any](ctx context.Context, col *firestore.CollectionRef) ([]*T, error) {
	iter := col.Documents(ctx)
	defer iter.Stop()

	var items []*T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents", goerr.V("collection", col.ID))
		}

		var item T
		if err := doc.DataTo(&item); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("doc_id", doc.Ref.ID))
		}
		items = append(items, &item)
	}
	return items, nil
}
