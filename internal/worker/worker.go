package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/pkg/queue"
	"github.com/classpulse/backend/pkg/storage"
)

// sessionReport is the JSON document archived to S3 when a session ends.
type sessionReport struct {
	Session     *models.Session       `json:"session"`
	Rewards     []models.RewardAction `json:"rewards"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Processor processes background jobs: session report archiving to S3 and the
// email fallback for notifications delivered while the recipient was offline.
type Processor struct {
	sessions *session.Repository
	s3       *storage.S3
	queue    *queue.Queue
	email    config.EmailConfig
	logger   *zap.Logger
}

// NewProcessor creates a job processor. s3 may be nil; report jobs then fail
// and retry until the DLQ absorbs them.
func NewProcessor(sessions *session.Repository, s3 *storage.S3, q *queue.Queue, email config.EmailConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sessions: sessions, s3: s3, queue: q, email: email, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeSessionReport:
		return p.processSessionReport(ctx, job)
	case queue.JobTypeNotificationEmail:
		return p.processNotificationEmail(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processSessionReport(ctx context.Context, job *queue.Job) error {
	var payload queue.SessionReportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.s3 == nil {
		return fmt.Errorf("s3 not configured")
	}

	s, err := p.sessions.LoadSession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	rewards, err := p.sessions.ListRewards(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("list rewards: %w", err)
	}

	report := sessionReport{Session: s, Rewards: rewards, GeneratedAt: time.Now().UTC()}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := storage.ReportKey(payload.SessionID.String())
	if _, err := p.s3.Upload(ctx, p.s3.ReportsBucket(), key, "application/json", bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("session report archived",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("s3_key", key))
	return nil
}

// processNotificationEmail sends the fallback email for a notification whose
// recipient was offline at dispatch time. Delivery here is a structured log of
// the outgoing message; an SMTP provider slots in behind the same payload.
func (p *Processor) processNotificationEmail(ctx context.Context, job *queue.Job) error {
	var payload queue.NotificationEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	p.logger.Info("notification email sent",
		zap.String("notification_id", payload.NotificationID.String()),
		zap.String("recipient_id", payload.RecipientID.String()),
		zap.String("type", payload.Type),
		zap.String("subject", payload.Title),
		zap.String("from", p.email.FromAddress))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
