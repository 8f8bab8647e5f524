package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/store"
	"github.com/syncrelay/syncrelay/internal/turn"
)

type fakeStore struct {
	*store.MemoryStore
	bindErr    error
	historyErr error
	appendErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) SetSessionBinding(ctx context.Context, userID, sessionID string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	return f.MemoryStore.SetSessionBinding(ctx, userID, sessionID)
}

func (f *fakeStore) History(ctx context.Context, userID string) ([]*domain.Activity, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.MemoryStore.History(ctx, userID)
}

func (f *fakeStore) Append(ctx context.Context, userID string, a *domain.Activity) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.MemoryStore.Append(ctx, userID, a)
}

type delivery struct {
	target     string
	activities []*domain.Activity
}

type fakeReplayer struct {
	deliveries []delivery
	failBatch  int // 1-based index of the call to fail, 0 = never
	cancelOn   int // 1-based index of the call after which ctx is cancelled
	cancel     context.CancelFunc
}

func (f *fakeReplayer) BulkDeliver(ctx context.Context, target string, activities []*domain.Activity) error {
	call := len(f.deliveries) + 1
	f.deliveries = append(f.deliveries, delivery{target: target, activities: activities})
	if f.cancelOn != 0 && call == f.cancelOn {
		f.cancel()
	}
	if f.failBatch != 0 && call == f.failBatch {
		return errors.New("channel rejected batch")
	}
	return nil
}

type fakeSender struct {
	sent    []*domain.Activity
	updated []*domain.Activity
	deleted []*domain.ConversationRef
	sendErr error
	opErr   error
}

func (f *fakeSender) SendActivities(ctx context.Context, activities []*domain.Activity) ([]string, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		f.sent = append(f.sent, a)
		ids = append(ids, fmt.Sprintf("sent-%d", len(f.sent)))
	}
	return ids, nil
}

func (f *fakeSender) UpdateActivity(ctx context.Context, a *domain.Activity) error {
	if f.opErr != nil {
		return f.opErr
	}
	f.updated = append(f.updated, a)
	return nil
}

func (f *fakeSender) DeleteActivity(ctx context.Context, ref *domain.ConversationRef) error {
	if f.opErr != nil {
		return f.opErr
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func joinActivity(userID, conversationID string) *domain.Activity {
	return &domain.Activity{
		ID:           "join-1",
		Kind:         domain.KindEvent,
		Name:         domain.EventJoin,
		From:         domain.Account{ID: userID, Role: domain.RoleUser},
		Conversation: domain.Conversation{ID: conversationID},
	}
}

func messageActivity(userID, text string) *domain.Activity {
	return &domain.Activity{
		Kind:         domain.KindMessage,
		Text:         text,
		From:         domain.Account{ID: userID, Role: domain.RoleUser},
		Conversation: domain.Conversation{ID: "conv-1"},
	}
}

// runTurn pushes one activity through an adapter with only the synchronizer
// installed and no handler beyond h.
func runTurn(t *testing.T, s *Synchronizer, sender turn.ChannelSender, a *domain.Activity, h turn.Handler) error {
	t.Helper()
	adapter := turn.NewAdapter(sender, testLogger()).Use(s)
	return adapter.ProcessActivity(context.Background(), a, h)
}

type handlerFunc func(ctx context.Context, tc *turn.Context) error

func (f handlerFunc) OnActivity(ctx context.Context, tc *turn.Context) error { return f(ctx, tc) }

func TestReplaySplitsIntoBatches(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	for i := 0; i < 1200; i++ {
		a := &domain.Activity{ID: fmt.Sprintf("m%04d", i), Kind: domain.KindMessage}
		if err := st.Append(ctx, "u1", a); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	rp := &fakeReplayer{}
	s := NewSynchronizer(st, rp, 500, testLogger())

	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-new"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if len(rp.deliveries) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(rp.deliveries))
	}
	sizes := []int{500, 500, 200}
	seq := 0
	for i, d := range rp.deliveries {
		if d.target != "conv-new" {
			t.Fatalf("batch %d: expected target conv-new, got %s", i, d.target)
		}
		if len(d.activities) != sizes[i] {
			t.Fatalf("batch %d: expected %d activities, got %d", i, sizes[i], len(d.activities))
		}
		for _, a := range d.activities {
			want := fmt.Sprintf("m%04d", seq)
			if a.ID != want {
				t.Fatalf("expected %s at position %d, got %s", want, seq, a.ID)
			}
			seq++
		}
	}
}

func TestReplayFiltersNonMessages(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	for i := 0; i < 10; i++ {
		st.Append(ctx, "u1", &domain.Activity{ID: fmt.Sprintf("m%d", i), Kind: domain.KindMessage})
	}
	for i := 0; i < 5; i++ {
		st.Append(ctx, "u1", &domain.Activity{ID: fmt.Sprintf("upd%d", i), Kind: domain.KindMessageUpdate})
	}
	st.Append(ctx, "u1", &domain.Activity{ID: "del", Kind: domain.KindMessageDelete})
	st.Append(ctx, "u1", &domain.Activity{ID: "ev", Kind: domain.KindEvent, Name: domain.EventJoin})

	rp := &fakeReplayer{}
	s := NewSynchronizer(st, rp, 500, testLogger())

	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-new"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if len(rp.deliveries) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(rp.deliveries))
	}
	if got := len(rp.deliveries[0].activities); got != 10 {
		t.Fatalf("expected 10 replayed messages, got %d", got)
	}
	for _, a := range rp.deliveries[0].activities {
		if a.Kind != domain.KindMessage {
			t.Fatalf("replayed non-message activity %s (%s)", a.ID, a.Kind)
		}
	}
}

func TestReplayContinuesAfterBatchFailure(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	for i := 0; i < 1200; i++ {
		st.Append(ctx, "u1", &domain.Activity{ID: fmt.Sprintf("m%d", i), Kind: domain.KindMessage})
	}

	rp := &fakeReplayer{failBatch: 2}
	s := NewSynchronizer(st, rp, 500, testLogger())

	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-new"), nil); err != nil {
		t.Fatalf("turn failed despite batch failure: %v", err)
	}
	if len(rp.deliveries) != 3 {
		t.Fatalf("expected all 3 batches attempted, got %d", len(rp.deliveries))
	}
}

func TestReplaySkippedWhenHistoryUnavailable(t *testing.T) {
	st := newFakeStore()
	st.historyErr = errors.New("backend down")

	rp := &fakeReplayer{}
	s := NewSynchronizer(st, rp, 500, testLogger())

	handled := false
	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		handled = true
		return nil
	})
	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-new"), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if len(rp.deliveries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(rp.deliveries))
	}
	if !handled {
		t.Fatal("turn must proceed to the handler when replay is skipped")
	}
}

func TestReplayCancelledBetweenBatches(t *testing.T) {
	bg := context.Background()
	st := newFakeStore()
	for i := 0; i < 1500; i++ {
		st.Append(bg, "u1", &domain.Activity{ID: fmt.Sprintf("m%d", i), Kind: domain.KindMessage})
	}

	ctx, cancel := context.WithCancel(bg)
	rp := &fakeReplayer{cancelOn: 1, cancel: cancel}
	s := NewSynchronizer(st, rp, 500, testLogger())

	adapter := turn.NewAdapter(&fakeSender{}, testLogger()).Use(s)
	adapter.ProcessActivity(ctx, joinActivity("u1", "conv-new"), nil)

	if len(rp.deliveries) != 1 {
		t.Fatalf("expected replay to stop after cancellation, got %d deliveries", len(rp.deliveries))
	}
}

func TestJoinRecordsBinding(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())

	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-a"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-b"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, err := st.GetSessionBinding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSessionBinding failed: %v", err)
	}
	if got != "conv-b" {
		t.Fatalf("expected latest binding conv-b, got %q", got)
	}
}

func TestBatchSizeClamped(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	for i := 0; i < 600; i++ {
		st.Append(ctx, "u1", &domain.Activity{ID: fmt.Sprintf("m%d", i), Kind: domain.KindMessage})
	}

	rp := &fakeReplayer{}
	s := NewSynchronizer(st, rp, 5000, testLogger())

	if err := runTurn(t, s, &fakeSender{}, joinActivity("u1", "conv-new"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if len(rp.deliveries) != 2 {
		t.Fatalf("expected oversized batch size clamped to 500 (2 batches), got %d", len(rp.deliveries))
	}
	if got := len(rp.deliveries[0].activities); got != 500 {
		t.Fatalf("expected first batch of 500, got %d", got)
	}
}

func TestInboundMessageLogged(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())

	if err := runTurn(t, s, &fakeSender{}, messageActivity("u1", "hello"), nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, err := st.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 logged activity, got %d", len(got))
	}
	if got[0].Text != "hello" || got[0].Kind != domain.KindMessage {
		t.Fatalf("unexpected logged activity: %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}
}

func TestAnonymousIdentitySubstituted(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())

	a := &domain.Activity{Kind: domain.KindMessage, Text: "who am i"}
	if err := runTurn(t, s, &fakeSender{}, a, nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if a.From.ID == "" {
		t.Fatal("expected substituted user id")
	}
	if !strings.HasPrefix(a.From.ID, "anonymous-") {
		t.Fatalf("expected anonymous placeholder, got %q", a.From.ID)
	}
	if a.From.Role != domain.RoleUser {
		t.Fatalf("expected role %q, got %q", domain.RoleUser, a.From.Role)
	}

	got, err := st.History(ctx, a.From.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected activity logged under placeholder id, got %d records", len(got))
	}
}

func TestSentRepliesLoggedAfterDelivery(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		reply := &domain.Activity{
			Kind:         domain.KindMessage,
			Text:         "reply",
			From:         domain.Account{ID: "bot", Role: domain.RoleBot},
			Conversation: tc.Activity().Conversation,
		}
		_, err := tc.SendActivities(ctx, reply)
		return err
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, err := st.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	// Both sides of the exchange land in the same user's log, in the order
	// they became visible.
	if len(got) != 2 {
		t.Fatalf("expected inbound + reply in log, got %d", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "reply" {
		t.Fatalf("unexpected log order: %q then %q", got[0].Text, got[1].Text)
	}
	if got[1].From.Role != domain.RoleBot {
		t.Fatalf("expected bot reply, got role %q", got[1].From.Role)
	}
}

func TestFailedSendNotLogged(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{sendErr: errors.New("channel down")}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendActivities(ctx, &domain.Activity{Kind: domain.KindMessage, Text: "reply"})
		return err
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err == nil {
		t.Fatal("expected send failure to propagate")
	}

	got, _ := st.History(ctx, "u1")
	if len(got) != 1 {
		t.Fatalf("expected only the inbound activity logged, got %d", len(got))
	}
}

func TestUpdateLoggedAsUpdateRecord(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		upd := &domain.Activity{
			ID:           "m9",
			Kind:         domain.KindMessage,
			Text:         "edited",
			Conversation: tc.Activity().Conversation,
		}
		return tc.UpdateActivity(ctx, upd)
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, _ := st.History(ctx, "u1")
	if len(got) != 2 {
		t.Fatalf("expected inbound + update record, got %d", len(got))
	}
	rec := got[1]
	if rec.Kind != domain.KindMessageUpdate {
		t.Fatalf("expected %s record, got %s", domain.KindMessageUpdate, rec.Kind)
	}
	if rec.ID != "m9" || rec.Text != "edited" {
		t.Fatalf("unexpected update record: %+v", rec)
	}
	if len(sender.updated) != 1 {
		t.Fatalf("expected channel update performed once, got %d", len(sender.updated))
	}
}

func TestDeleteLoggedAsSynthesizedRecord(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		return tc.DeleteActivity(ctx, &domain.ConversationRef{
			ActivityID:   "m9",
			Conversation: domain.Conversation{ID: "conv-1"},
		})
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, _ := st.History(ctx, "u1")
	if len(got) != 2 {
		t.Fatalf("expected inbound + delete record, got %d", len(got))
	}
	rec := got[1]
	if rec.Kind != domain.KindMessageDelete {
		t.Fatalf("expected %s record, got %s", domain.KindMessageDelete, rec.Kind)
	}
	if rec.ID != "m9" || rec.Conversation.ID != "conv-1" || rec.From.ID != "u1" {
		t.Fatalf("unexpected delete record: %+v", rec)
	}
}

func TestFailedOperationsNotLogged(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{opErr: errors.New("channel down")}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		if err := tc.UpdateActivity(ctx, &domain.Activity{ID: "m9"}); err == nil {
			t.Fatal("expected update failure")
		}
		if err := tc.DeleteActivity(ctx, &domain.ConversationRef{ActivityID: "m9"}); err == nil {
			t.Fatal("expected delete failure")
		}
		return nil
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	got, _ := st.History(ctx, "u1")
	if len(got) != 1 {
		t.Fatalf("expected failed operations to leave no records, got %d", len(got))
	}
}

func TestAppendFailureDoesNotAbortTurn(t *testing.T) {
	st := newFakeStore()
	st.appendErr = errors.New("backend down")
	s := NewSynchronizer(st, &fakeReplayer{}, 500, testLogger())
	sender := &fakeSender{}

	h := handlerFunc(func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendActivities(ctx, &domain.Activity{Kind: domain.KindMessage, Text: "reply"})
		return err
	})

	if err := runTurn(t, s, sender, messageActivity("u1", "hello"), h); err != nil {
		t.Fatalf("logging failure must not fail the turn: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected reply delivered despite logging failure, got %d sends", len(sender.sent))
	}
}
