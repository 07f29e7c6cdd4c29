package classifier

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
)

// Classifier decides what a normalized query asks for.
type Classifier interface {
	Classify(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error)
}

// Fallback tries Primary and uses Secondary when it fails.
type Fallback struct {
	Primary   Classifier
	Secondary Classifier
}

func (f *Fallback) Classify(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
	result, err := f.Primary.Classify(ctx, query, convCtx)
	if err == nil {
		return result, nil
	}

	logging.From(ctx).Warn("primary classifier failed, using fallback", "error", err)
	return f.Secondary.Classify(ctx, query, convCtx)
}
