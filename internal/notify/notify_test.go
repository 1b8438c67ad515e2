package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"turnero/internal/config"
	"turnero/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func notice(contact string) *models.CancellationNotice {
	return &models.CancellationNotice{
		AppointmentID: "a-1",
		BusinessName:  "Barber",
		ClientName:    "Luis",
		ClientContact: contact,
		ServiceName:   "Haircut",
		Date:          "2030-03-05",
		Time:          "10:00",
		Reason:        "staff sick",
		BookingLink:   "https://book.example/barber",
	}
}

func TestCancellationText(t *testing.T) {
	text := CancellationText(notice("telegram:1"))
	assert.Contains(t, text, "Barber")
	assert.Contains(t, text, "Haircut")
	assert.Contains(t, text, "2030-03-05 at 10:00")
	assert.Contains(t, text, "Reason: staff sick")
	assert.Contains(t, text, "https://book.example/barber")

	bare := CancellationText(&models.CancellationNotice{BusinessName: "Barber", Date: "2030-03-05", Time: "10:00"})
	assert.NotContains(t, bare, "Reason")
	assert.NotContains(t, bare, "Book again")
}

func TestTelegramNotifier(t *testing.T) {
	sender := new(mockSender)
	n := NewTelegramNotifier(sender)

	assert.True(t, n.Supports("telegram:42"))
	assert.False(t, n.Supports("telegram:abc"))
	assert.False(t, n.Supports("mailto:luis@example.com"))

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42
	})).Return(tgbotapi.Message{}, nil).Once()

	require.NoError(t, n.NotifyCancellation(context.Background(), notice("telegram:42")))
	sender.AssertExpectations(t)

	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("blocked by user")).Once()
	err := n.NotifyCancellation(context.Background(), notice("telegram:42"))
	assert.Error(t, err)
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookBody
	var signature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		_ = json.Unmarshal(body, &got)
		assert.Equal(t, Sign("s3cret", body), signature)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Secret: "s3cret", Timeout: time.Second})
	assert.True(t, n.Supports("mailto:luis@example.com"))
	assert.True(t, n.Supports("tel:+5491100000000"))
	assert.False(t, n.Supports("telegram:42"))
	assert.False(t, n.Supports(""))

	require.NoError(t, n.NotifyCancellation(context.Background(), notice("mailto:luis@example.com")))
	assert.Equal(t, "appointment.cancelled", got.Event)
	require.NotNil(t, got.Notice)
	assert.Equal(t, "a-1", got.Notice.AppointmentID)
	assert.NotEmpty(t, signature)
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL})
	err := n.NotifyCancellation(context.Background(), notice("tel:+1"))
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	sender := new(mockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	var webhookCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
	}))
	defer srv.Close()

	router := NewRouter(NewTelegramNotifier(sender), NewWebhookNotifier(config.WebhookConfig{URL: srv.URL}), nil)
	ctx := context.Background()

	require.NoError(t, router.NotifyCancellation(ctx, notice("telegram:7")))
	sender.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, 0, webhookCalls)

	require.NoError(t, router.NotifyCancellation(ctx, notice("mailto:a@b.c")))
	assert.Equal(t, 1, webhookCalls)

	err := NewRouter(NewTelegramNotifier(sender)).NotifyCancellation(ctx, notice("mailto:a@b.c"))
	assert.True(t, errors.Is(err, ErrNoChannel))
	assert.False(t, router.Supports(""))
}
