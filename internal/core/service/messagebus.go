package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
)

var (
	ErrNoHandler         = errors.New("no handler registered for command")
	ErrHandlerRegistered = errors.New("handler already registered for command")
)

// CommandHandler runs one command in its own transaction and returns the
// command's result together with the events the transaction released.
type CommandHandler func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error)

// EventHandler reacts to one event. It may release further events, which
// the bus appends to its queue.
type EventHandler func(ctx context.Context, event domain.Event) ([]domain.Event, error)

// MessageBus dispatches a command to its single handler, then drains the
// resulting events breadth-first. Commands model exactly one intended
// effect; events are notifications whose handler failures are isolated.
type MessageBus struct {
	commands map[string]CommandHandler
	events   map[string][]EventHandler
	logger   *zap.Logger
}

func NewMessageBus(logger *zap.Logger) *MessageBus {
	return &MessageBus{
		commands: make(map[string]CommandHandler),
		events:   make(map[string][]EventHandler),
		logger:   logger,
	}
}

// RegisterCommand binds a command name to its one handler. A duplicate
// registration is a bootstrap defect, never resolved at dispatch time.
func (b *MessageBus) RegisterCommand(name string, h CommandHandler) error {
	if _, ok := b.commands[name]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerRegistered, name)
	}
	b.commands[name] = h
	return nil
}

// Subscribe adds an event handler; an event may have any number of them.
func (b *MessageBus) Subscribe(name string, h EventHandler) {
	b.events[name] = append(b.events[name], h)
}

// Handle dispatches one command and fully drains the event cascade it
// produces before returning the command handler's result to the caller.
// Even a failed command's events are dispatched: an event released by a
// committed transaction is a fact regardless of what the caller is told.
func (b *MessageBus) Handle(ctx context.Context, cmd domain.Command) (string, error) {
	handler, ok := b.commands[cmd.CommandName()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoHandler, cmd.CommandName())
	}

	result, events, err := handler(ctx, cmd)

	queue := events
	for len(queue) > 0 {
		event := queue[0]
		queue = queue[1:]

		for _, eh := range b.events[event.EventName()] {
			more, ehErr := eh(ctx, event)
			if ehErr != nil {
				b.logger.Error("event handler failed",
					zap.String("event", event.EventName()),
					zap.Error(ehErr),
				)
				continue
			}
			queue = append(queue, more...)
		}
	}

	return result, err
}
