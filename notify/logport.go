package notify

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// LogPort is a Port that records every call to the log instead of delivering
// it. It backs tenants whose transport is not wired yet and doubles as a
// test double.
type LogPort struct {
	log    *zap.Logger
	nextID atomic.Int64
}

func NewLogPort(log *zap.Logger) *LogPort {
	return &LogPort{log: log}
}

func (p *LogPort) SendBroadcast(ctx context.Context, target RoutingTarget, text string, actions []Action) (BroadcastRef, error) {
	id := p.nextID.Add(1)
	p.log.Info("broadcast",
		zap.Int64("channel_id", target.ChannelID),
		zap.Int("thread_id", target.ThreadID),
		zap.Int64("message_id", id),
		zap.String("text", text),
		zap.Int("actions", len(actions)),
	)
	return BroadcastRef{ChannelID: target.ChannelID, MessageID: id}, nil
}

func (p *LogPort) EditMessage(ctx context.Context, ref BroadcastRef, newText string) error {
	p.log.Info("edit message",
		zap.Int64("channel_id", ref.ChannelID),
		zap.Int64("message_id", ref.MessageID),
		zap.String("text", newText),
	)
	return nil
}

func (p *LogPort) AnswerInteraction(ctx context.Context, interactionID string, alert string) error {
	p.log.Info("answer interaction",
		zap.String("interaction_id", interactionID),
		zap.String("alert", alert),
	)
	return nil
}

func (p *LogPort) SendDirect(ctx context.Context, actorID int64, text string) error {
	p.log.Info("direct message", zap.Int64("actor_id", actorID), zap.String("text", text))
	return nil
}

func (p *LogPort) SendDocument(ctx context.Context, actorID int64, path, caption string) error {
	p.log.Info("document", zap.Int64("actor_id", actorID), zap.String("path", path), zap.String("caption", caption))
	return nil
}
