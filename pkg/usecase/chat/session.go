package chat

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/repository"
	"github.com/m-mizutani/dashchat/pkg/service/cache"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Apology is shown instead of an internal error.
const Apology = "抱歉，处理你的问题时出现了错误，请稍后再试。"

// Session holds one conversation and feeds each input through the
// pipeline.
type Session struct {
	pipeline *Pipeline
	repo     repository.Repository
	storage  adapter.Storage

	convCtx *model.ConversationContext
	history *model.History
}

// SessionInput contains parameters for creating a Session
type SessionInput struct {
	Pipeline *Pipeline
	Repo     repository.Repository
	Storage  adapter.Storage  // Optional: transcripts are exported only when set
	Window   int              // Message window; DefaultMessageWindow when zero
	History  *model.HistoryID // Optional: specify to continue an exported conversation
}

// Reply is the answer to one input. Result is nil when the turn failed.
type Reply struct {
	Text   string
	Result *TurnResult
}

func NewSession(ctx context.Context, input SessionInput) (*Session, error) {
	if input.Pipeline == nil {
		return nil, goerr.New("pipeline is required")
	}
	if input.Repo == nil {
		return nil, goerr.New("repository is required")
	}

	s := &Session{
		pipeline: input.Pipeline,
		repo:     input.Repo,
		storage:  input.Storage,
		convCtx:  model.NewConversationContext(input.Window),
		history:  &model.History{},
	}

	if input.History != nil {
		if input.Storage == nil {
			return nil, goerr.New("history storage is required to resume a conversation",
				goerr.V("history_id", *input.History))
		}
		history, err := loadHistory(ctx, input.Repo, input.Storage, *input.History)
		if err != nil {
			return nil, err
		}
		if err := s.restore(ctx, history); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Session) restore(ctx context.Context, history *model.History) error {
	s.history = history
	for _, turn := range history.Turns {
		s.convCtx.AddMessage(model.RoleUser, turn.Input)
		s.convCtx.AddMessage(model.RoleAssistant, turn.Response)
		if turn.Intent != "" {
			s.convCtx.LastIntent = turn.Intent
		}
	}

	if history.MerchantID == "" {
		return nil
	}
	merchant, err := s.repo.GetMerchant(ctx, history.MerchantID)
	if errors.Is(err, repository.ErrNotFound) {
		logging.From(ctx).Warn("merchant of restored history is gone", "merchant_id", history.MerchantID)
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to restore conversation subject")
	}
	s.convCtx.SetSubject(merchant.ID, merchant.Name)
	return nil
}

// Send answers message. Failures are logged and answered with Apology, so
// the caller always has something to show.
func (s *Session) Send(ctx context.Context, message string) *Reply {
	result, err := s.pipeline.ProcessTurn(ctx, message, s.convCtx)
	if err != nil {
		logging.From(ctx).Error("failed to process turn", "error", err)
		s.record(message, Apology, nil)
		return &Reply{Text: Apology}
	}

	s.apply(result)
	s.record(message, result.Response, result)
	return &Reply{Text: result.Response, Result: result}
}

// apply carries the outcome of a finished turn into the conversation.
func (s *Session) apply(result *TurnResult) {
	if result.Blocked() {
		return
	}

	if result.Switch != nil && result.Switch.ShouldSwitch {
		s.convCtx.SetSubject(result.Switch.TargetID, result.Switch.TargetName)
	}
	if result.Entity != nil && result.Entity.Matched {
		s.convCtx.SetSubject(result.Entity.ID, result.Entity.Name)
	}
	if result.Intent != nil {
		s.convCtx.LastIntent = result.Intent.Intent
	}
}

func (s *Session) record(input, response string, result *TurnResult) {
	s.convCtx.AddMessage(model.RoleUser, input)
	s.convCtx.AddMessage(model.RoleAssistant, response)

	turn := model.HistoryTurn{
		Input:    input,
		Response: response,
		At:       time.Now(),
	}
	if result != nil {
		turn.TurnID = result.TurnID
		turn.Blocked = result.Blocked()
		if result.Rewrite != nil {
			turn.Normalized = result.Rewrite.Normalized
		}
		if result.Intent != nil {
			turn.Intent = result.Intent.Intent
		}
		if result.Confidence != nil {
			turn.Confidence = result.Confidence.Overall
			turn.NeedsConfirmation = result.Confidence.NeedsConfirmation
		}
	}
	s.history.Turns = append(s.history.Turns, turn)
	s.history.MerchantID = s.convCtx.MerchantID
}

// Context returns a copy of the current conversation context.
func (s *Session) Context() *model.ConversationContext {
	return s.convCtx.Clone()
}

// HistoryID returns the ID of the exported transcript, or empty before the
// first export.
func (s *Session) HistoryID() model.HistoryID {
	return s.history.ID
}

// CacheStats reports the state of the pipeline's intent cache.
func (s *Session) CacheStats() cache.Stats {
	return s.pipeline.CacheStats()
}

// Close exports the transcript when storage is configured and at least one
// turn happened.
func (s *Session) Close(ctx context.Context) error {
	if s.storage == nil || len(s.history.Turns) == 0 {
		return nil
	}
	if err := saveHistory(ctx, s.repo, s.storage, s.history); err != nil {
		return goerr.Wrap(err, "failed to export conversation history")
	}
	logging.From(ctx).Info("conversation history saved", "history_id", s.history.ID)
	return nil
}
