// Package worker runs background notification jobs pulled from the Redis queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/queue"
)

type jobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

type emailLogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// maxErrorMessage bounds the SMTP error text kept in email_logs.
const maxErrorMessage = 500

// EmailProcessor sends notification emails and records each attempt in email_logs.
type EmailProcessor struct {
	queue    jobSource
	logs     emailLogStore
	sender   Sender
	renderer *Renderer
	backoff  time.Duration
	logger   *zap.Logger
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(q jobSource, logs emailLogStore, sender Sender, renderer *Renderer, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:    q,
		logs:     logs,
		sender:   sender,
		renderer: renderer,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// Process executes one email job. A failed send is recorded and returned so the job is retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.EmailPayload()
	if err != nil {
		return err
	}
	msg, err := p.renderer.Render(payload)
	if err != nil {
		return fmt.Errorf("render %s: %w", payload.EmailType, err)
	}

	regID := payload.RegistrationID
	entry := &models.EmailLog{
		RegistrationID: &regID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        msg.Subject,
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		if mErr := p.logs.MarkFailed(ctx, entry.ID, truncate(err.Error(), maxErrorMessage)); mErr != nil {
			p.logger.Error("mark email failed", zap.String("email_log_id", entry.ID.String()), zap.Error(mErr))
		}
		return fmt.Errorf("send: %w", err)
	}
	if err := p.logs.MarkSent(ctx, entry.ID); err != nil {
		p.logger.Error("mark email sent", zap.String("email_log_id", entry.ID.String()), zap.Error(err))
	}

	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", regID.String()),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
