package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/queue"
)

type chanQueue struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case j := <-q.jobs:
		return j, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *chanQueue) retries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

type memLogs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.EmailLog
}

func newMemLogs() *memLogs { return &memLogs{rows: make(map[uuid.UUID]*models.EmailLog)} }

func (m *memLogs) Create(_ context.Context, el *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el.ID = uuid.New()
	el.Status = models.EmailPending
	cp := *el
	m.rows[el.ID] = &cp
	return nil
}

func (m *memLogs) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = models.EmailSent
	return nil
}

func (m *memLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = models.EmailFailed
	m.rows[id].ErrorMessage = reason
	return nil
}

func (m *memLogs) statuses() []models.EmailStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EmailStatus
	for _, r := range m.rows {
		out = append(out, r.Status)
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func confirmationJob(t *testing.T) *queue.Job {
	t.Helper()
	job, err := queue.NewEmailJob(queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RegistrationID: uuid.New(),
		RecipientEmail: "ada@example.com",
		RecipientName:  "Ada",
		Signature:      "sig123",
	})
	require.NoError(t, err)
	return job
}

func TestRenderer(t *testing.T) {
	t.Parallel()
	r := NewRenderer("https://cc.example/")
	regID := uuid.New()

	msg, err := r.Render(queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RegistrationID: regID,
		RecipientEmail: "ada@example.com",
		RecipientName:  "Ada",
		Signature:      "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Please confirm your registration", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Ada,")
	assert.Contains(t, msg.Body, "https://cc.example/registrations/confirm/abc")
	assert.Contains(t, msg.Body, "checkin:"+regID.String())

	msg, err = r.Render(queue.EmailPayload{EmailType: models.EmailTypeCheckinReceipt, RecipientEmail: "ada@example.com", RecipientName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "You are checked in", msg.Subject)
	assert.NotContains(t, msg.Body, "confirm")

	_, err = r.Render(queue.EmailPayload{EmailType: "newsletter", RecipientEmail: "a@b.c"})
	assert.Error(t, err)
	_, err = r.Render(queue.EmailPayload{EmailType: models.EmailTypeCheckinReceipt})
	assert.Error(t, err)
	_, err = r.Render(queue.EmailPayload{EmailType: models.EmailTypeRegistrationConfirmation, RecipientEmail: "a@b.c"})
	assert.Error(t, err)
}

func TestEmailProcessor_Process(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sent", func(t *testing.T) {
		t.Parallel()
		logs, sender := newMemLogs(), &fakeSender{}
		p := NewEmailProcessor(&chanQueue{}, logs, sender, NewRenderer("https://cc.example"), nil)

		require.NoError(t, p.Process(ctx, confirmationJob(t)))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, []models.EmailStatus{models.EmailSent}, logs.statuses())
	})

	t.Run("send failure is recorded", func(t *testing.T) {
		t.Parallel()
		logs, sender := newMemLogs(), &fakeSender{err: errors.New("relay down")}
		p := NewEmailProcessor(&chanQueue{}, logs, sender, NewRenderer("https://cc.example"), nil)

		err := p.Process(ctx, confirmationJob(t))
		require.ErrorContains(t, err, "relay down")
		assert.Equal(t, []models.EmailStatus{models.EmailFailed}, logs.statuses())
	})

	t.Run("render failure writes no log", func(t *testing.T) {
		t.Parallel()
		logs := newMemLogs()
		p := NewEmailProcessor(&chanQueue{}, logs, &fakeSender{}, NewRenderer("https://cc.example"), nil)
		job, err := queue.NewEmailJob(queue.EmailPayload{EmailType: "unknown", RecipientEmail: "a@b.c"})
		require.NoError(t, err)

		assert.Error(t, p.Process(ctx, job))
		assert.Empty(t, logs.statuses())
	})
}

func TestEmailProcessor_RunRetriesFailures(t *testing.T) {
	t.Parallel()
	q := &chanQueue{jobs: make(chan *queue.Job, 2)}
	sender := &fakeSender{err: errors.New("relay down")}
	p := NewEmailProcessor(q, newMemLogs(), sender, NewRenderer("https://cc.example"), nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	q.jobs <- confirmationJob(t)
	require.Eventually(t, func() bool { return q.retries() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBuildMIME(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	raw := string(buildMIME(`"Creative Contact" <noreply@example.com>`, Message{
		To:      "ada@example.com",
		Subject: "Bestätigung",
		Body:    "line one\nline two",
	}, at))

	assert.True(t, strings.HasPrefix(raw, "From: \"Creative Contact\" <noreply@example.com>\r\n"))
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Date: Sat, 14 Mar 2026 18:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", maxErrorMessage-1) + "é…"

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "smtp: 550", 20, "smtp: 550"},
		{"ascii", "abcdef", 3, "abc"},
		{"backs off before split rune", long, maxErrorMessage, strings.Repeat("a", maxErrorMessage-1)},
		{"rune fits exactly", "xé", 3, "xé"},
		{"all multi-byte", "ééé", 3, "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}
