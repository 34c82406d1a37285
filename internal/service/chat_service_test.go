package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

type steppingClock struct {
	t time.Time
}

func (c *steppingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newChatFixture() (*ChatService, *fakeMessageRepo, *fakeHistoryRepo, *recordingEmitter, *steppingClock) {
	messages := &fakeMessageRepo{}
	histories := newFakeHistoryRepo()
	emitter := &recordingEmitter{}
	clock := &steppingClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewChatService(ChatDependencies{
		MessageRepo: messages,
		HistoryRepo: histories,
		Emitter:     emitter,
		WritePolicy: testPolicy(),
		Now:         clock.Now,
		NewID:       sequentialIDs("msg"),
	})
	return svc, messages, histories, emitter, clock
}

func TestSendMessageKeepsOneHistoryPerPair(t *testing.T) {
	svc, messages, histories, _, _ := newChatFixture()
	ctx := context.Background()

	if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "O1", ReceiverID: "U1", SentBy: domain.SentByOperator, Body: "hello"}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	second, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "hi, price?"})
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	if len(messages.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages.messages))
	}
	if len(histories.rows) != 1 {
		t.Fatalf("expected a single history row, got %d", len(histories.rows))
	}
	row := histories.rows["O1/U1"]
	if !row.LastInteraction.Equal(second.CreatedAt) {
		t.Fatalf("last interaction %v, want %v", row.LastInteraction, second.CreatedAt)
	}
	if row.LastMessage != "hi, price?" || row.ReadStatus {
		t.Fatalf("unexpected history %+v", row)
	}
}

func TestSendMessageOlderThanHistoryKeepsLatestPreview(t *testing.T) {
	svc, _, histories, _, clock := newChatFixture()
	ctx := context.Background()

	latest, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "is it in stock?"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	clock.t = latest.CreatedAt.Add(-5 * time.Minute)
	if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "O1", ReceiverID: "U1", SentBy: domain.SentByOperator, Body: "welcome"}); err != nil {
		t.Fatalf("late send failed: %v", err)
	}

	row := histories.rows["O1/U1"]
	if row.LastMessage != "is it in stock?" || row.ReadStatus || !row.LastInteraction.Equal(latest.CreatedAt) {
		t.Fatalf("delayed message overwrote the latest interaction: %+v", row)
	}
}

func TestSendMessageRelaysToPairRoom(t *testing.T) {
	svc, _, _, emitter, _ := newChatFixture()

	msg, err := svc.SendMessage(context.Background(), SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "ping"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected one relay, got %d", len(emitter.events))
	}
	got := emitter.events[0]
	if got.Room != RoomID("O1", "U1") || got.Event != EventNewMessage {
		t.Fatalf("unexpected relay %+v", got)
	}
	if payload := got.Payload.(MessageEvent); payload.ID != msg.ID || payload.Body != "ping" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestSendMessagePersistFailureSkipsRelay(t *testing.T) {
	svc, messages, histories, emitter, _ := newChatFixture()
	messages.createErr = errConnReset

	_, err := svc.SendMessage(context.Background(), SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "ping"})
	if apperrors.KindOf(err) != apperrors.KindStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if len(emitter.events) != 0 || len(histories.rows) != 0 {
		t.Fatalf("nothing should be relayed or recorded")
	}
}

func TestSendMessageHistoryFailureStillDelivers(t *testing.T) {
	svc, messages, histories, emitter, _ := newChatFixture()
	histories.touchErr = errConnReset

	if _, err := svc.SendMessage(context.Background(), SendMessageInput{SenderID: "O1", ReceiverID: "U1", SentBy: domain.SentByOperator, Body: "hey"}); err != nil {
		t.Fatalf("history failure must not fail the send: %v", err)
	}
	if len(messages.messages) != 1 || len(emitter.events) != 1 {
		t.Fatalf("message should be stored and relayed")
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _, _, _ := newChatFixture()
	cases := []SendMessageInput{
		{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "   "},
		{SenderID: "U1", ReceiverID: "U1", SentBy: domain.SentByUser, Body: "x"},
		{SenderID: "U1", ReceiverID: "O1", SentBy: "admin", Body: "x"},
	}
	for _, input := range cases {
		if _, err := svc.SendMessage(context.Background(), input); apperrors.KindOf(err) != apperrors.KindValidation {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestRoomIDIsSymmetric(t *testing.T) {
	if RoomID("a", "b") != RoomID("b", "a") {
		t.Fatalf("room id depends on argument order")
	}
	if RoomID("a", "b") == RoomID("a", "c") {
		t.Fatalf("distinct pairs share a room")
	}
}

func TestCreateHistoryIsIdempotent(t *testing.T) {
	svc, _, histories, _, _ := newChatFixture()
	ctx := context.Background()

	first, err := svc.CreateHistory(ctx, "O1", "U1")
	if err != nil {
		t.Fatalf("CreateHistory failed: %v", err)
	}
	second, err := svc.CreateHistory(ctx, "O1", "U1")
	if err != nil {
		t.Fatalf("CreateHistory failed: %v", err)
	}
	if first.ID != second.ID || len(histories.rows) != 1 {
		t.Fatalf("expected the same row, got %s and %s", first.ID, second.ID)
	}
}

func TestListHistoryAndMarkRead(t *testing.T) {
	svc, _, _, _, _ := newChatFixture()
	ctx := context.Background()
	if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: "hello"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	summaries, err := svc.ListHistory(ctx, "O1")
	if err != nil || len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d %v", len(summaries), err)
	}
	if summaries[0].History.ReadStatus {
		t.Fatalf("user message should leave the history unread")
	}
	if err := svc.MarkRead(ctx, "O1", "U1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	summaries, _ = svc.ListHistory(ctx, "U1")
	if !summaries[0].History.ReadStatus || !summaries[0].CounterpartIsOps {
		t.Fatalf("unexpected summary %+v", summaries[0])
	}

	if err := svc.MarkRead(ctx, "O1", "U9"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	svc, _, _, _, _ := newChatFixture()
	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: "U1", ReceiverID: "O1", SentBy: domain.SentByUser, Body: body}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	msgs, err := svc.ListMessages(ctx, "O1", "U1", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "two" || msgs[1].Body != "three" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
