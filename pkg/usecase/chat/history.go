package chat

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
)

func historyKey(id model.HistoryID) string {
	return "histories/" + string(id) + ".json"
}

// loadHistory loads history metadata from the repository and its turns from
// storage.
func loadHistory(ctx context.Context, repo repository.Repository, storage adapter.Storage, historyID model.HistoryID) (*model.History, error) {
	history, err := repo.GetHistory(ctx, historyID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history from repository")
	}

	reader, err := storage.Get(ctx, historyKey(historyID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history from storage", goerr.V("history_id", historyID))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history data")
	}

	var turns []model.HistoryTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal history turns", goerr.V("history_id", historyID))
	}

	history.Turns = turns
	return history, nil
}

// saveHistory writes the turns to storage and the metadata to the
// repository. A history without ID gets a new one.
func saveHistory(ctx context.Context, repo repository.Repository, storage adapter.Storage, history *model.History) error {
	now := time.Now()
	if history.ID == "" {
		history.ID = model.NewHistoryID()
		history.CreatedAt = now
	}
	history.UpdatedAt = now

	writer, err := storage.Put(ctx, historyKey(history.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("history_id", history.ID))
	}

	data, err := json.Marshal(history.Turns)
	if err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to marshal history turns")
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write history to storage")
	}

	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer")
	}

	if err := repo.PutHistory(ctx, history); err != nil {
		return goerr.Wrap(err, "failed to put history to repository")
	}

	return nil
}
