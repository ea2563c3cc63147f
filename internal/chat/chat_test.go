package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/gateway"
	"github.com/ashureev/timem/internal/prompt"
	"github.com/ashureev/timem/internal/store/storetest"
)

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []gateway.Request
}

func (f *fakeModel) Complete(ctx context.Context, req gateway.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("expected a deadline on the model call")
	}
	return f.reply, f.err
}

func (f *fakeModel) Close() error { return nil }

type fakeNotifier struct {
	mu     sync.Mutex
	typing []string
}

func (f *fakeNotifier) SendMessage(context.Context, string, string) error { return nil }

func (f *fakeNotifier) SendTypingIndicator(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, chatID)
	return nil
}

func newService(t *testing.T, model *fakeModel) (*Service, *storetest.Memory, *fakeNotifier) {
	t.Helper()
	mem := storetest.NewMemory()
	require.NoError(t, mem.AddUser(context.Background(), &domain.User{ID: "u1", Name: "Anna", TimezoneOffset: 3}))
	reg, err := prompt.NewRegistry()
	require.NoError(t, err)
	n := &fakeNotifier{}
	svc := NewService(mem, model, reg, n, Config{HistoryLimit: 4, ModelTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC) }
	return svc, mem, n
}

func TestHandleMessageAppliesActions(t *testing.T) {
	model := &fakeModel{reply: `{"added_tasks":[{"name":"Buy bread","description":"","deadline":"2026-10-18 18:00:00"}],"deleted_tasks":[],"updated_tasks":[],"reply":"Added bread 🍞"}`}
	svc, mem, n := newService(t, model)

	reply, err := svc.HandleMessage(context.Background(), "u1", "buy bread at 6pm")
	require.NoError(t, err)
	assert.Equal(t, "Added bread 🍞", reply)
	assert.Equal(t, []string{"u1"}, n.typing)

	tasks, err := mem.GetTasks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy bread", tasks[0].Name)

	hist := mem.History("u1")
	require.Len(t, hist, 2)
	assert.Equal(t, domain.RoleUser, hist[0].Role)
	assert.Equal(t, "buy bread at 6pm", hist[0].Content)
	assert.Equal(t, domain.RoleAssistant, hist[1].Role)
	assert.Equal(t, "Added bread 🍞", hist[1].Content)

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, "buy bread at 6pm", req.Message)
	assert.Contains(t, req.System, "2026-10-18 09:00:00", "system prompt carries the user's local time")
	assert.Contains(t, req.System, "The task list is empty.")
}

func TestHandleMessageSendsContext(t *testing.T) {
	model := &fakeModel{reply: `{"reply":"ok"}`}
	svc, mem, _ := newService(t, model)
	ctx := context.Background()

	d, _ := domain.ParseDeadline("2026-10-18 10:00")
	require.NoError(t, mem.AddTask(ctx, &domain.Task{UserID: "u1", Name: "Купить хлеб", Deadline: d}))
	for i := 0; i < 6; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		require.NoError(t, mem.AppendHistory(ctx, "u1", role, "turn"))
	}

	_, err := svc.HandleMessage(ctx, "u1", "и молоко")
	require.NoError(t, err)

	req := model.requests[0]
	assert.Len(t, req.History, 4)
	assert.Contains(t, req.System, "Купить хлеб (due: 2026-10-18 10:00")
}

func TestHandleMessageModelUnavailable(t *testing.T) {
	model := &fakeModel{err: gateway.ErrModelUnavailable}
	svc, mem, _ := newService(t, model)

	reply, err := svc.HandleMessage(context.Background(), "u1", "hello")
	assert.ErrorIs(t, err, gateway.ErrModelUnavailable)
	assert.Equal(t, FailureReply, reply)
	assert.Empty(t, mem.History("u1"), "failed turns are not recorded")
}

func TestHandleMessageUnregistered(t *testing.T) {
	model := &fakeModel{reply: `{"reply":"x"}`}
	svc, _, n := newService(t, model)

	_, err := svc.HandleMessage(context.Background(), "stranger", "hi")
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Empty(t, model.requests)
	assert.Empty(t, n.typing)
}

func TestHandleMessageMalformedOutputBecomesReply(t *testing.T) {
	model := &fakeModel{reply: "I am not JSON at all"}
	svc, mem, _ := newService(t, model)

	reply, err := svc.HandleMessage(context.Background(), "u1", "hey")
	require.NoError(t, err)
	assert.Equal(t, "I am not JSON at all", reply)

	tasks, _ := mem.GetTasks(context.Background(), "u1")
	assert.Empty(t, tasks)
}

func TestHandleMessageHistoryFailureStillReplies(t *testing.T) {
	model := &fakeModel{reply: `{"reply":"fine"}`}
	svc, mem, _ := newService(t, model)
	mem.FailHistory = errors.New("locked")

	reply, err := svc.HandleMessage(context.Background(), "u1", "hey")
	require.NoError(t, err)
	assert.Equal(t, "fine", reply)
}
