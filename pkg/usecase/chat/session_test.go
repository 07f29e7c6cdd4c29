package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/usecase/chat"
	"github.com/m-mizutani/gt"
)

// mockStorage keeps objects in memory
type mockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}}
}

type mockWriter struct {
	bytes.Buffer
	commit func([]byte)
}

func (w *mockWriter) Close() error {
	w.commit(w.Bytes())
	return nil
}

func (s *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &mockWriter{commit: func(data []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.objects[key] = append([]byte(nil), data...)
	}}, nil
}

func (s *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, adapter.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestSessionCarriesSubject(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := newPipeline(t, chat.PipelineInput{Repo: repo})
	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo})).NoError(t)

	reply := s.Send(ctx, "老王面馆经营状况怎么样")
	gt.S(t, reply.Text).Contains("老王面馆健康评分")
	gt.Equal(t, s.Context().MerchantID, model.MerchantID("m001"))
	gt.Equal(t, s.Context().LastIntent, model.IntentHealthCheck)

	reply = s.Send(ctx, "有什么风险")
	gt.Equal(t, reply.Result.Entity.ID, model.MerchantID("m001"))
	gt.S(t, reply.Text).Contains("老王面馆存在以下风险")
	gt.Equal(t, s.Context().LastIntent, model.IntentRiskQuery)
	gt.A(t, s.Context().Messages).Length(4)

	reply = s.Send(ctx, "小李咖啡怎么样")
	gt.True(t, reply.Result.Switch.ShouldSwitch)
	gt.Equal(t, s.Context().MerchantID, model.MerchantID("m002"))
	gt.Equal(t, s.Context().MerchantName, "小李咖啡")
}

func TestSessionSwitchWithoutTarget(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := newPipeline(t, chat.PipelineInput{Repo: repo})
	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo})).NoError(t)

	s.Send(ctx, "老王面馆经营状况怎么样")
	gt.True(t, s.Context().HasSubject())

	reply := s.Send(ctx, "换一家")
	gt.True(t, reply.Result.Switch.ShouldSwitch)
	gt.False(t, s.Context().HasSubject())
}

func TestSessionBlockedKeepsSubject(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := newPipeline(t, chat.PipelineInput{Repo: repo})
	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo})).NoError(t)

	s.Send(ctx, "老王面馆经营状况怎么样")
	reply := s.Send(ctx, "把小李咖啡的评分改成5分")

	gt.True(t, reply.Result.Blocked())
	gt.Equal(t, s.Context().MerchantID, model.MerchantID("m001"))
	gt.Equal(t, s.Context().LastIntent, model.IntentHealthCheck)
}

func TestSessionApologizesOnError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	classify := &mockClassifier{
		classifyFunc: func(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	p := newPipeline(t, chat.PipelineInput{Repo: repo, Classifier: classify})
	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo})).NoError(t)

	reply := s.Send(ctx, "老王面馆经营状况怎么样")
	gt.Equal(t, reply.Text, chat.Apology)
	gt.True(t, reply.Result == nil)
	gt.A(t, s.Context().Messages).Length(2)
}

func TestSessionHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	storage := newMockStorage()
	p := newPipeline(t, chat.PipelineInput{Repo: repo})

	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo, Storage: storage})).NoError(t)
	s.Send(ctx, "老王面馆经营状况怎么样")
	s.Send(ctx, "有什么风险")
	gt.NoError(t, s.Close(ctx))

	id := s.HistoryID()
	gt.NotEqual(t, id, model.HistoryID(""))

	meta := gt.R1(repo.GetHistory(ctx, id)).NoError(t)
	gt.Equal(t, meta.MerchantID, model.MerchantID("m001"))

	var turns []model.HistoryTurn
	gt.NoError(t, json.Unmarshal(storage.objects["histories/"+string(id)+".json"], &turns))
	gt.A(t, turns).Length(2)
	gt.Equal(t, turns[0].Input, "老王面馆经营状况怎么样")
	gt.Equal(t, turns[1].Intent, model.IntentRiskQuery)

	t.Run("resume", func(t *testing.T) {
		resumed := gt.R1(chat.NewSession(ctx, chat.SessionInput{
			Pipeline: p,
			Repo:     repo,
			Storage:  storage,
			History:  &id,
		})).NoError(t)

		gt.Equal(t, resumed.HistoryID(), id)
		gt.Equal(t, resumed.Context().MerchantName, "老王面馆")
		gt.Equal(t, resumed.Context().LastIntent, model.IntentRiskQuery)
		gt.A(t, resumed.Context().Messages).Length(4)

		reply := resumed.Send(ctx, "为什么营收下滑")
		gt.Equal(t, reply.Result.Entity.ID, model.MerchantID("m001"))
	})

	t.Run("resume requires storage", func(t *testing.T) {
		_, err := chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo, History: &id})
		gt.Error(t, err)
	})

	t.Run("unknown history", func(t *testing.T) {
		unknown := model.NewHistoryID()
		_, err := chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo, Storage: storage, History: &unknown})
		gt.Error(t, err)
	})
}

func TestSessionCloseWithoutStorage(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	p := newPipeline(t, chat.PipelineInput{Repo: repo})
	s := gt.R1(chat.NewSession(ctx, chat.SessionInput{Pipeline: p, Repo: repo})).NoError(t)

	s.Send(ctx, "老王面馆经营状况怎么样")
	gt.NoError(t, s.Close(ctx))
	gt.Equal(t, s.HistoryID(), model.HistoryID(""))
}
