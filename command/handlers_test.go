package command

import (
	"context"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/metorial/go-callbacks/core"
	"github.com/metorial/go-callbacks/schedule"
)

func TestRecordEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.CallbackEvent{ID: "cbe_1", CallbackID: "cb_1", Status: core.EventStatusPending}
	called := false

	svc := stubEventMutator{
		recordFn: func(_ context.Context, in core.NewEventInput) (core.CallbackEvent, error) {
			called = true
			if in.CallbackID != "cb_1" {
				t.Fatalf("expected callback cb_1, got %q", in.CallbackID)
			}
			return expected, nil
		},
	}

	cmd := NewRecordEventCommand(svc)
	collector := gocmd.NewResult[core.CallbackEvent]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, RecordEventMessage{Input: core.NewEventInput{
		CallbackID: "cb_1",
		Type:       "session.completed",
		Payload:    []byte(`{"ok":true}`),
	}})
	if err != nil {
		t.Fatalf("execute record event: %v", err)
	}
	if !called {
		t.Fatalf("expected record invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Status != expected.Status {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("mark event failed", func(t *testing.T) {
		called := false
		svc := stubEventMutator{
			markFailedFn: func(_ context.Context, id string, reason string) error {
				called = true
				if id != "cbe_1" || reason != "manual" {
					t.Fatalf("unexpected mark payload: %q %q", id, reason)
				}
				return nil
			},
		}
		cmd := NewMarkEventFailedCommand(svc)
		if err := cmd.Execute(context.Background(), MarkEventFailedMessage{EventID: "cbe_1", Reason: "manual"}); err != nil {
			t.Fatalf("execute mark failed: %v", err)
		}
		if !called {
			t.Fatalf("expected mark failed invocation")
		}
	})

	t.Run("replay event", func(t *testing.T) {
		expected := core.CallbackEvent{ID: "cbe_2", Status: core.EventStatusPending}
		called := false
		svc := stubEventMutator{
			replayFn: func(_ context.Context, id string) (core.CallbackEvent, error) {
				called = true
				if id != "cbe_1" {
					t.Fatalf("unexpected replay id %q", id)
				}
				return expected, nil
			},
		}
		cmd := NewReplayEventCommand(svc)
		collector := gocmd.NewResult[core.CallbackEvent]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, ReplayEventMessage{EventID: "cbe_1"}); err != nil {
			t.Fatalf("execute replay: %v", err)
		}
		if !called {
			t.Fatalf("expected replay invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected replay result")
		}
		if stored.ID != expected.ID {
			t.Fatalf("unexpected replay result: %#v", stored)
		}
	})

	t.Run("callback admin", func(t *testing.T) {
		calledCreate := false
		calledDelete := false
		admin := stubCallbackAdmin{
			createFn: func(_ context.Context, in core.CreateCallbackInput) (core.Callback, error) {
				calledCreate = true
				return core.Callback{ID: "cb_1", InstanceID: in.InstanceID, Type: in.Type}, nil
			},
			softDeleteFn: func(_ context.Context, id string) error {
				calledDelete = true
				if id != "cb_1" {
					t.Fatalf("unexpected delete id %q", id)
				}
				return nil
			},
		}

		createCmd := NewCreateCallbackCommand(admin)
		collector := gocmd.NewResult[core.Callback]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := createCmd.Execute(ctx, CreateCallbackMessage{Input: core.CreateCallbackInput{
			InstanceID: "inst_1",
			Type:       core.CallbackTypeWebhookManaged,
		}})
		if err != nil {
			t.Fatalf("execute create callback: %v", err)
		}
		if !calledCreate {
			t.Fatalf("expected create invocation")
		}
		if stored, ok := collector.Load(); !ok || stored.ID != "cb_1" {
			t.Fatalf("expected created callback result")
		}

		deleteCmd := NewDeleteCallbackCommand(admin)
		if err := deleteCmd.Execute(context.Background(), DeleteCallbackMessage{CallbackID: "cb_1"}); err != nil {
			t.Fatalf("execute delete callback: %v", err)
		}
		if !calledDelete {
			t.Fatalf("expected delete invocation")
		}
	})

	t.Run("destination admin", func(t *testing.T) {
		calledDeactivate := false
		admin := stubDestinationAdmin{
			createFn: func(_ context.Context, in core.CreateDestinationInput) (core.CallbackDestination, error) {
				return core.CallbackDestination{ID: "dst_1", InstanceID: in.InstanceID}, nil
			},
			deactivateFn: func(_ context.Context, id string) error {
				calledDeactivate = true
				if id != "dst_1" {
					t.Fatalf("unexpected deactivate id %q", id)
				}
				return nil
			},
		}

		cmd := NewDeactivateDestinationCommand(admin)
		if err := cmd.Execute(context.Background(), DeactivateDestinationMessage{DestinationID: "dst_1"}); err != nil {
			t.Fatalf("execute deactivate: %v", err)
		}
		if !calledDeactivate {
			t.Fatalf("expected deactivate invocation")
		}
	})
}

func TestRunnerCommands_StoreBatchResults(t *testing.T) {
	dispatchResult := schedule.BatchResult{Claimed: 3, Succeeded: 2, Retried: 1}
	runner := stubDispatchRunner{
		runFn: func(context.Context) (schedule.BatchResult, error) {
			return dispatchResult, nil
		},
	}
	cmd := NewDispatchDueCommand(runner)
	collector := gocmd.NewResult[schedule.BatchResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := cmd.Execute(ctx, DispatchDueMessage{}); err != nil {
		t.Fatalf("execute dispatch due: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected batch result")
	}
	if stored.Claimed != 3 || stored.Succeeded != 2 || stored.Retried != 1 {
		t.Fatalf("unexpected batch result: %#v", stored)
	}

	pollResult := schedule.PollResult{Due: 2, Recorded: 5}
	poller := stubPollRunner{
		runFn: func(context.Context) (schedule.PollResult, error) {
			return pollResult, nil
		},
	}
	pollCmd := NewPollDueCommand(poller)
	pollCollector := gocmd.NewResult[schedule.PollResult]()
	ctx = gocmd.ContextWithResult(context.Background(), pollCollector)
	if err := pollCmd.Execute(ctx, PollDueMessage{}); err != nil {
		t.Fatalf("execute poll due: %v", err)
	}
	storedPoll, ok := pollCollector.Load()
	if !ok {
		t.Fatalf("expected poll result")
	}
	if storedPoll.Due != 2 || storedPoll.Recorded != 5 {
		t.Fatalf("unexpected poll result: %#v", storedPoll)
	}
}

func TestMessageValidation(t *testing.T) {
	cases := []struct {
		name    string
		message interface{ Validate() error }
		wantErr bool
	}{
		{"create callback missing instance", CreateCallbackMessage{Input: core.CreateCallbackInput{Type: core.CallbackTypeWebhookManaged}}, true},
		{"create polling without schedule", CreateCallbackMessage{Input: core.CreateCallbackInput{InstanceID: "inst_1", Type: core.CallbackTypePolling}}, true},
		{"create polling with schedule", CreateCallbackMessage{Input: core.CreateCallbackInput{
			InstanceID: "inst_1",
			Type:       core.CallbackTypePolling,
			Schedule:   &core.Schedule{IntervalSeconds: 60, NextRunAt: time.Now()},
		}}, false},
		{"create destination missing secret", CreateDestinationMessage{Input: core.CreateDestinationInput{
			InstanceID: "inst_1",
			URL:        "https://receiver.example.com",
			Rule:       core.RoutingRule{Type: core.SelectionTypeAll},
		}}, true},
		{"create destination invalid rule", CreateDestinationMessage{Input: core.CreateDestinationInput{
			InstanceID:    "inst_1",
			URL:           "https://receiver.example.com",
			SigningSecret: "whsec",
			Rule:          core.RoutingRule{Type: core.SelectionTypeSelected},
		}}, true},
		{"record event missing type", RecordEventMessage{Input: core.NewEventInput{CallbackID: "cb_1"}}, true},
		{"replay missing id", ReplayEventMessage{}, true},
		{"mark failed ok", MarkEventFailedMessage{EventID: "cbe_1"}, false},
		{"dispatch due always valid", DispatchDueMessage{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

type stubEventMutator struct {
	recordFn     func(context.Context, core.NewEventInput) (core.CallbackEvent, error)
	replayFn     func(context.Context, string) (core.CallbackEvent, error)
	markFailedFn func(context.Context, string, string) error
}

func (s stubEventMutator) RecordEvent(ctx context.Context, in core.NewEventInput) (core.CallbackEvent, error) {
	if s.recordFn == nil {
		return core.CallbackEvent{}, nil
	}
	return s.recordFn(ctx, in)
}

func (s stubEventMutator) ReplayEvent(ctx context.Context, id string) (core.CallbackEvent, error) {
	if s.replayFn == nil {
		return core.CallbackEvent{}, nil
	}
	return s.replayFn(ctx, id)
}

func (s stubEventMutator) MarkEventFailed(ctx context.Context, id string, reason string) error {
	if s.markFailedFn == nil {
		return nil
	}
	return s.markFailedFn(ctx, id, reason)
}

type stubCallbackAdmin struct {
	createFn     func(context.Context, core.CreateCallbackInput) (core.Callback, error)
	softDeleteFn func(context.Context, string) error
}

func (s stubCallbackAdmin) Create(ctx context.Context, in core.CreateCallbackInput) (core.Callback, error) {
	if s.createFn == nil {
		return core.Callback{}, nil
	}
	return s.createFn(ctx, in)
}

func (s stubCallbackAdmin) SoftDelete(ctx context.Context, id string) error {
	if s.softDeleteFn == nil {
		return nil
	}
	return s.softDeleteFn(ctx, id)
}

type stubDestinationAdmin struct {
	createFn     func(context.Context, core.CreateDestinationInput) (core.CallbackDestination, error)
	deactivateFn func(context.Context, string) error
}

func (s stubDestinationAdmin) Create(ctx context.Context, in core.CreateDestinationInput) (core.CallbackDestination, error) {
	if s.createFn == nil {
		return core.CallbackDestination{}, nil
	}
	return s.createFn(ctx, in)
}

func (s stubDestinationAdmin) Deactivate(ctx context.Context, id string) error {
	if s.deactivateFn == nil {
		return nil
	}
	return s.deactivateFn(ctx, id)
}

type stubDispatchRunner struct {
	runFn func(context.Context) (schedule.BatchResult, error)
}

func (s stubDispatchRunner) RunOnce(ctx context.Context) (schedule.BatchResult, error) {
	if s.runFn == nil {
		return schedule.BatchResult{}, nil
	}
	return s.runFn(ctx)
}

type stubPollRunner struct {
	runFn func(context.Context) (schedule.PollResult, error)
}

func (s stubPollRunner) RunOnce(ctx context.Context) (schedule.PollResult, error) {
	if s.runFn == nil {
		return schedule.PollResult{}, nil
	}
	return s.runFn(ctx)
}
