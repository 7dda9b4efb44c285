package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"readingly/pkg/push"
	"readingly/pkg/queue"
	"readingly/pkg/store"
)

// ErrNoDeviceTokens signals a user with no registered push targets.
var ErrNoDeviceTokens = errors.New("no device tokens found for user")

// sendConcurrency bounds parallel FCM calls per delivery.
const sendConcurrency = 8

// SendResult summarizes one smart-nudge delivery.
type SendResult struct {
	NudgeType NudgeType `json:"nudgeType,omitempty"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	Skipped   bool      `json:"skipped"`
}

// NudgeService analyzes reading state and fans a nudge out to every
// device a user has registered.
type NudgeService struct {
	store    store.Store
	analyzer *Analyzer
	sender   push.Sender
	jobs     *queue.RedisJobQueue
	logger   *slog.Logger
}

func NewNudgeService(s store.Store, analyzer *Analyzer, sender push.Sender, jobs *queue.RedisJobQueue, logger *slog.Logger) *NudgeService {
	return &NudgeService{
		store:    s,
		analyzer: analyzer,
		sender:   sender,
		jobs:     jobs,
		logger:   logger,
	}
}

// SendSmart analyzes the user and delivers the resulting nudge to all
// of their devices. Tokens rejected as unregistered are pruned.
func (s *NudgeService) SendSmart(ctx context.Context, userID string, forceType NudgeType) (SendResult, error) {
	tokens, err := s.store.ListDeviceTokens(ctx, userID)
	if err != nil {
		return SendResult{}, fmt.Errorf("list device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return SendResult{}, ErrNoDeviceTokens
	}

	nudge, err := s.analyzer.Analyze(ctx, userID, forceType)
	if err != nil {
		return SendResult{}, err
	}
	if nudge == nil {
		return SendResult{Skipped: true}, nil
	}

	data := map[string]string{
		"type":      "smart_nudge",
		"nudgeType": string(nudge.Type),
	}
	for k, v := range nudge.Data {
		data[k] = v
	}

	var (
		mu     sync.Mutex
		sent   int
		failed int
		dead   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			err := s.sender.Send(gctx, token.Token, nudge.Title, nudge.Body, data)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, push.ErrUnregistered):
				failed++
				dead = append(dead, token.Token)
			default:
				failed++
				s.logger.Warn("push delivery failed", "user_id", userID, "err", err)
			}
			// delivery errors are tallied, not propagated: one bad
			// token must not cancel the other sends
			return nil
		})
	}
	_ = g.Wait()

	for _, token := range dead {
		if err := s.store.DeleteDeviceToken(ctx, token); err != nil {
			s.logger.Warn("failed to prune dead token", "user_id", userID, "err", err)
		}
	}

	return SendResult{
		NudgeType: nudge.Type,
		Sent:      sent,
		Failed:    failed,
		Total:     len(tokens),
	}, nil
}

// EnqueueBatch queues a nudge job for every user with registered
// devices. Delivery happens asynchronously on the queue workers.
func (s *NudgeService) EnqueueBatch(ctx context.Context) (int, error) {
	if s.jobs == nil {
		return 0, errors.New("job queue not configured")
	}
	userIDs, err := s.store.ListNudgeUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list nudge users: %w", err)
	}
	queued := 0
	for _, userID := range userIDs {
		if _, err := s.jobs.Enqueue(ctx, userID); err != nil {
			s.logger.Warn("failed to enqueue nudge job", "user_id", userID, "err", err)
			continue
		}
		queued++
	}
	return queued, nil
}

// StartWorkers consumes queued nudge jobs until ctx is cancelled.
func (s *NudgeService) StartWorkers(ctx context.Context, concurrency int) {
	if s.jobs == nil {
		return
	}
	s.jobs.Start(ctx, concurrency, func(jctx context.Context, job queue.JobStatus) error {
		result, err := s.SendSmart(jctx, job.UserID, "")
		if errors.Is(err, ErrNoDeviceTokens) {
			return nil
		}
		if err != nil {
			return err
		}
		s.logger.Info("nudge job processed",
			"job_id", job.ID,
			"user_id", job.UserID,
			"nudge_type", result.NudgeType,
			"sent", result.Sent,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
		return nil
	})
}
