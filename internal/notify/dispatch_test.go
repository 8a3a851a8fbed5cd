package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records sends and fails on demand.
type fakeSender struct {
	failFor map[string]bool // by user id
	sent    []string        // bodies in dispatch order
}

func (f *fakeSender) Send(_ context.Context, ep Endpoint, _, body string) error {
	if f.failFor[ep.UserID] {
		return errors.New("push service: status 410")
	}
	f.sent = append(f.sent, body)
	return nil
}

func TestDispatchMarksOnlySuccessfulSends(t *testing.T) {
	endpoints := map[string]Endpoint{
		"good": {UserID: "good", Endpoint: "https://push/1"},
		"bad":  {UserID: "bad", Endpoint: "https://push/2"},
	}
	dispatches := []Dispatch{
		{UserID: "good", Scope: "src:1", Label: "코트", DateKey: "20250301", Keys: []string{"18:00~20:00"}},
		{UserID: "bad", Scope: "src:1", Label: "코트", DateKey: "20250301", Keys: []string{"18:00~20:00"}},
	}
	sender := &fakeSender{failFor: map[string]bool{"bad": true}}

	sent, ok, failed := dispatch(context.Background(), sender, endpoints, dispatches, testLogger)

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	// Failed push leaves its slots unsent so the next cycle retries them.
	require.Len(t, sent, 1)
	assert.Equal(t, "good", sent[0].UserID)
	assert.Equal(t, SentRow{UserID: "good", Scope: "src:1", DateKey: "20250301", SlotKey: "18:00~20:00"}, sent[0])
}

func TestDispatchSkipsSubscribersWithoutEndpoint(t *testing.T) {
	dispatches := []Dispatch{
		{UserID: "ghost", Scope: "src:1", DateKey: "20250301", Keys: []string{"10:00~12:00"}},
	}
	sender := &fakeSender{}
	sent, ok, failed := dispatch(context.Background(), sender, map[string]Endpoint{}, dispatches, testLogger)
	assert.Empty(t, sent)
	assert.Zero(t, ok)
	assert.Zero(t, failed)
	assert.Empty(t, sender.sent)
}

func TestDispatchBodyUsesShortDateAndLabel(t *testing.T) {
	endpoints := map[string]Endpoint{"u1": {UserID: "u1"}}
	dispatches := []Dispatch{
		{UserID: "u1", Scope: "src:1", Label: "고양 성저", DateKey: "20250301", Keys: []string{"18:00~20:00"}},
	}
	sender := &fakeSender{}
	_, ok, _ := dispatch(context.Background(), sender, endpoints, dispatches, testLogger)
	require.Equal(t, 1, ok)
	assert.Equal(t, "고양 성저 03/01 신규 슬롯: 18:00~20:00", sender.sent[0])
}

func TestUnconfiguredSenderNeverMarksSent(t *testing.T) {
	assert.Nil(t, NewWebPushSender("", "pub", "mailto:ops@example.com", testLogger))

	// A typed nil still satisfies Sender but must fail, not silently
	// succeed: a silent success would record the slots as sent.
	var s *WebPushSender
	err := s.Send(context.Background(), Endpoint{UserID: "u1"}, "t", "b")
	assert.Error(t, err)
}

func TestDispatchWithNilSenderLeavesSlotsUnsent(t *testing.T) {
	endpoints := map[string]Endpoint{"u1": {UserID: "u1"}}
	dispatches := []Dispatch{
		{UserID: "u1", Scope: "src:1", DateKey: "20250301", Keys: []string{"18:00~20:00"}},
	}
	sent, ok, failed := dispatch(context.Background(), nil, endpoints, dispatches, testLogger)
	assert.Empty(t, sent)
	assert.Zero(t, ok)
	assert.Zero(t, failed)
}
