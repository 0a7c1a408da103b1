package chat

import (
	"context"
	"sync"

	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// attempt identifies one generation for persistence and audit.
type attempt struct {
	companyID string
	userID    string
	sessionID string
	agentID   *string
	modelID   string
	provider  models.Provider
}

// Generation is an open upstream stream. Next is called from the request
// goroutine; Finish hands whatever is left to a background task.
type Generation struct {
	svc    *Service
	stream *llm.Stream
	cancel context.CancelFunc
	rec    attempt
	logger zerolog.Logger

	ended  bool
	finish sync.Once
}

// Model returns the effective logical model id.
func (g *Generation) Model() string { return g.rec.modelID }

// Next returns the next chunk, io.EOF at the end, or the upstream error.
func (g *Generation) Next() (string, error) {
	chunk, err := g.stream.Next()
	if err != nil {
		g.ended = true
	}
	return chunk, err
}

// Finish schedules draining and persistence. It is safe to call more than
// once and must be called even when the client went away.
func (g *Generation) Finish(ctx context.Context) {
	g.finish.Do(func() {
		disconnected := !g.ended
		g.svc.tasks.Go(ctx, "chat.persist", func(ctx context.Context) {
			g.persist(ctx, disconnected)
		})
	})
}

func (g *Generation) persist(ctx context.Context, disconnected bool) {
	defer g.cancel()
	defer g.stream.Close() //nolint:errcheck

	streamErr := g.stream.Drain()
	usage := g.stream.Usage()
	provider := string(g.rec.provider)

	outcome := outcomeCompleted
	switch {
	case streamErr != nil:
		outcome = outcomeStreamError
		g.logger.Error().Err(streamErr).Str("kind", llm.KindOf(streamErr).String()).Msg("generation failed mid-stream")
	case disconnected:
		outcome = outcomeDisconnected
		g.logger.Info().Msg("client disconnected, generation completed in background")
	}
	generationsTotal.WithLabelValues(provider, outcome).Inc()
	tokensTotal.WithLabelValues(provider).Add(float64(usage.Total()))

	// the drain may have used up the task budget
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.svc.writeTimeout)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		if g.rec.sessionID == "" {
			return nil
		}
		content := g.stream.Text()
		if streamErr != nil {
			content = errorTranscript(FriendlyError(streamErr))
		}
		err := g.svc.store.AppendMessage(ctx, &models.ChatMessage{
			SessionID: g.rec.sessionID,
			Role:      models.MessageRoleAssistant,
			Content:   content,
		})
		if err != nil {
			g.logger.Error().Err(err).Msg("saving assistant message")
		}
		return err
	})
	eg.Go(func() error {
		err := g.svc.audit(ctx, g.rec, usage.Total(), streamErr)
		if err != nil {
			g.logger.Error().Err(err).Msg("writing audit entry")
		}
		return err
	})
	// both writes always run; failures were logged above
	if eg.Wait() != nil {
		return
	}
	g.logger.Debug().Int64("tokens_used", usage.Total()).Str("outcome", outcome).Msg("chat persisted")
}
