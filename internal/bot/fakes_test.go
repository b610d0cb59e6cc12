package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/model"
	"github.com/dailycheck/checklistbot/internal/store"
)

var testNow = time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

type sentMessage struct {
	UserID   string
	Text     string
	Keyboard Keyboard
}

type editedMessage struct {
	Ref      MessageRef
	Text     string
	Keyboard Keyboard
}

type answeredCallback struct {
	CallbackID string
	Alert      string
}

// fakeTransport records outbound traffic and optionally fails sends.
type fakeTransport struct {
	sends   []sentMessage
	edits   []editedMessage
	answers []answeredCallback
	sendErr error
}

func (f *fakeTransport) SendMessage(_ context.Context, userID, text string, kb Keyboard) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, sentMessage{UserID: userID, Text: text, Keyboard: kb})
	return nil
}

func (f *fakeTransport) EditMessage(_ context.Context, ref MessageRef, text string, kb Keyboard) error {
	f.edits = append(f.edits, editedMessage{Ref: ref, Text: text, Keyboard: kb})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, alert string) error {
	f.answers = append(f.answers, answeredCallback{CallbackID: callbackID, Alert: alert})
	return nil
}

func (f *fakeTransport) lastSend(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sends)
	return f.sends[len(f.sends)-1]
}

func (f *fakeTransport) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

func (f *fakeTransport) lastAnswer(t *testing.T) answeredCallback {
	t.Helper()
	require.NotEmpty(t, f.answers)
	return f.answers[len(f.answers)-1]
}

// fakePayments records invoice requests.
type fakePayments struct {
	requests []model.PlanTier
	err      error
}

func (f *fakePayments) RequestPayment(_ context.Context, userID string, plan entitlement.Plan) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, plan.Tier)
	return "invoice-" + userID, nil
}

func newTestHandler(t *testing.T) (*Handler, *store.Store, *fakeTransport, *fakePayments) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "checklists.json"), nil)
	require.NoError(t, err)
	tr := &fakeTransport{}
	pay := &fakePayments{}
	h := NewHandler(st, entitlement.NewEngine(nil), tr, pay, nil).
		WithClock(func() time.Time { return testNow })
	return h, st, tr, pay
}

// grantPremium gives the user a standard plan running from testNow.
func grantPremium(t *testing.T, st *store.Store, userID string) {
	t.Helper()
	exp := testNow.AddDate(0, 0, 30)
	_, err := st.Update(userID, func(u *model.UserState) error {
		u.IsPremium = true
		u.PremiumExpires = &exp
		u.PlanTier = model.PlanStandard
		return nil
	})
	require.NoError(t, err)
}
