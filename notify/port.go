// Package notify defines the outbound messaging port consumed by the core.
// The concrete transport (bot API, gateway, ...) lives outside this module;
// the core treats every call as best-effort and never assumes delivery
// ordering or exactly-once semantics.
package notify

import "context"

// RoutingTarget addresses a broadcast destination: a channel plus an optional
// sub-channel thread.
type RoutingTarget struct {
	ChannelID int64
	ThreadID  int
}

// BroadcastRef identifies a delivered broadcast message so it can be edited
// later (claimed / expired).
type BroadcastRef struct {
	ChannelID int64
	MessageID int64
}

// Action is an interactive button attached to a message. Data is the opaque
// payload echoed back when the button is pressed.
type Action struct {
	Label string
	Data  string
}

// Port is the notification channel consumed by the request lifecycle.
type Port interface {
	// SendBroadcast posts text with actions to a routing target and returns
	// a reference to the delivered message.
	SendBroadcast(ctx context.Context, target RoutingTarget, text string, actions []Action) (BroadcastRef, error)
	// EditMessage replaces the text of a previously delivered broadcast.
	EditMessage(ctx context.Context, ref BroadcastRef, newText string) error
	// AnswerInteraction acknowledges a button press; alert is optional
	// feedback shown to the pressing user.
	AnswerInteraction(ctx context.Context, interactionID string, alert string) error
	// SendDirect delivers a private text message to an actor.
	SendDirect(ctx context.Context, actorID int64, text string) error
	// SendDocument delivers a file to an actor.
	SendDocument(ctx context.Context, actorID int64, path, caption string) error
}
