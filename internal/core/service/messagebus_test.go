package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
)

type testCommand struct{ name string }

func (c testCommand) CommandName() string { return c.name }

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestHandle_ReturnsCommandResult(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	require.NoError(t, bus.RegisterCommand("do-thing", func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "done", nil, nil
	}))

	result, err := bus.Handle(context.Background(), testCommand{name: "do-thing"})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestHandle_UnregisteredCommand(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())

	_, err := bus.Handle(context.Background(), testCommand{name: "mystery"})

	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestRegisterCommand_RejectsDuplicate(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	handler := func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "", nil, nil
	}

	require.NoError(t, bus.RegisterCommand("do-thing", handler))
	assert.ErrorIs(t, bus.RegisterCommand("do-thing", handler), ErrHandlerRegistered)
}

func TestHandle_FansOutEvents(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	require.NoError(t, bus.RegisterCommand("do-thing", func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "", []domain.Event{testEvent{name: "it-happened"}}, nil
	}))

	var calls []string
	bus.Subscribe("it-happened", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		calls = append(calls, "first")
		return nil, nil
	})
	bus.Subscribe("it-happened", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		calls = append(calls, "second")
		return nil, nil
	})

	_, err := bus.Handle(context.Background(), testCommand{name: "do-thing"})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestHandle_EventHandlerFailureIsIsolated(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	require.NoError(t, bus.RegisterCommand("do-thing", func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "ok", []domain.Event{testEvent{name: "it-happened"}}, nil
	}))

	siblingRan := false
	bus.Subscribe("it-happened", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		return nil, errors.New("boom")
	})
	bus.Subscribe("it-happened", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		siblingRan = true
		return nil, nil
	})

	result, err := bus.Handle(context.Background(), testCommand{name: "do-thing"})

	require.NoError(t, err, "event handler failure must not fail the command")
	assert.Equal(t, "ok", result)
	assert.True(t, siblingRan)
}

func TestHandle_DrainsCascadeBreadthFirst(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	require.NoError(t, bus.RegisterCommand("do-thing", func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "", []domain.Event{testEvent{name: "first"}, testEvent{name: "second"}}, nil
	}))

	var order []string
	bus.Subscribe("first", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		order = append(order, "first")
		return []domain.Event{testEvent{name: "third"}}, nil
	})
	bus.Subscribe("second", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		order = append(order, "second")
		return nil, nil
	})
	bus.Subscribe("third", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		order = append(order, "third")
		return nil, nil
	})

	_, err := bus.Handle(context.Background(), testCommand{name: "do-thing"})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order, "siblings before descendants")
}

func TestHandle_DispatchesEventsOfFailedCommand(t *testing.T) {
	bus := NewMessageBus(zap.NewNop())
	cmdErr := errors.New("out of stock")
	require.NoError(t, bus.RegisterCommand("do-thing", func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
		return "", []domain.Event{testEvent{name: "it-happened"}}, cmdErr
	}))

	notified := false
	bus.Subscribe("it-happened", func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		notified = true
		return nil, nil
	})

	_, err := bus.Handle(context.Background(), testCommand{name: "do-thing"})

	assert.ErrorIs(t, err, cmdErr)
	assert.True(t, notified, "committed events are facts even when the command reports failure")
}
