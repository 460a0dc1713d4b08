package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

type fakeBackend struct {
	replyText string
	err       error
	calls     int
	lastReq   model.Request
}

func (f *fakeBackend) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.Reply{Text: f.replyText}, nil
}

func (f *fakeBackend) Stream(ctx context.Context, req model.Request, emit func(model.Fragment)) error {
	reply, err := f.Complete(ctx, req)
	if err != nil {
		return err
	}
	emit(model.Fragment{Text: reply.Text})
	return nil
}

func (f *fakeBackend) Name() string { return "fake" }

func fillQueue(m *Manager, id string, n int) {
	c := m.convForTest(id)
	for i := 0; i < n; i++ {
		role := schema.UserTurn
		if i%2 == 1 {
			role = schema.AssistantTurn
		}
		c.queue = append(c.queue, role(strings.Repeat("x", 3)))
	}
}

func TestCompactPending_Success(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: "  they planned a trip  "}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 0, time.Second)

	fillQueue(m, "c1", 6)
	m.SetSummary("c1", "old summary")

	count := c.CompactPending(context.Background(), 6)
	require.Equal(t, 1, count)
	require.Equal(t, 1, backend.calls)

	require.Zero(t, m.QueueLen("c1"))
	summary, _ := m.Summary("c1")
	require.Equal(t, "they planned a trip", summary)

	// The prior summary travels into the call as context.
	require.Len(t, backend.lastReq.Turns, 2)
	require.Equal(t, schema.RoleSystem, backend.lastReq.Turns[0].Role)
	require.Contains(t, backend.lastReq.Turns[1].Content, "old summary")
	require.Contains(t, backend.lastReq.Turns[1].Content, "USER: xxx")
}

func TestCompactPending_SkipsBelowThreshold(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: "summary"}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 0, time.Second)

	fillQueue(m, "c1", 3)

	count := c.CompactPending(context.Background(), 6)
	require.Zero(t, count)
	require.Zero(t, backend.calls)
	require.Equal(t, 3, m.QueueLen("c1"))
}

func TestCompactPending_RestoresQueueOnFailure(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{err: errors.New("model unreachable")}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 0, time.Second)

	fillQueue(m, "c1", 6)
	before := m.CompactionQueue("c1")

	count := c.CompactPending(context.Background(), 6)
	require.Zero(t, count)
	require.Equal(t, before, m.CompactionQueue("c1"))

	summary, _ := m.Summary("c1")
	require.Empty(t, summary)
}

func TestCompactPending_EmptySummaryCountsAsFailure(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: "   "}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 0, time.Second)

	fillQueue(m, "c1", 6)
	before := m.CompactionQueue("c1")

	count := c.CompactPending(context.Background(), 6)
	require.Zero(t, count)
	require.Equal(t, before, m.CompactionQueue("c1"))
}

func TestCompactPending_ChunksOversizedQueue(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: "chunk summary"}
	c := NewCompactor(m, backend, "gpt-4o-mini", 10, 0, time.Second)

	fillQueue(m, "c1", 25)

	count := c.CompactPending(context.Background(), 6)
	require.Equal(t, 1, count)
	require.Equal(t, 1, backend.calls)
	// One chunk consumed; the remainder waits for the next cycle.
	require.Equal(t, 15, m.QueueLen("c1"))
}

func TestCompactPending_TruncatesToCap(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: strings.Repeat("s", 500)}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 100, time.Second)

	fillQueue(m, "c1", 6)

	count := c.CompactPending(context.Background(), 6)
	require.Equal(t, 1, count)
	summary, _ := m.Summary("c1")
	require.Len(t, summary, 100)
}

func TestCompactPending_MultipleConversations(t *testing.T) {
	m := newTestManager(t, 4)
	backend := &fakeBackend{replyText: "summary"}
	c := NewCompactor(m, backend, "gpt-4o-mini", 0, 0, time.Second)

	fillQueue(m, "c1", 6)
	fillQueue(m, "c2", 8)
	fillQueue(m, "c3", 2)

	count := c.CompactPending(context.Background(), 6)
	require.Equal(t, 2, count)
	require.Zero(t, m.QueueLen("c1"))
	require.Zero(t, m.QueueLen("c2"))
	require.Equal(t, 2, m.QueueLen("c3"))
}

func TestTranscript_SkipsEmptyContent(t *testing.T) {
	turns := []schema.Turn{
		schema.UserTurn("hello"),
		schema.AssistantCallTurn("", []schema.CapabilityCall{{ID: "1", Name: "echo"}}),
		schema.AssistantTurn("hi there"),
	}
	out := transcript(turns)
	require.Contains(t, out, "USER: hello")
	require.Contains(t, out, "ASSISTANT: hi there")
	require.Equal(t, 2, len(strings.Split(out, "\n")))
}
