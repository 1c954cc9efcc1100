package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"immo-scraper/models"
	"immo-scraper/utils"
)

func sampleEvents() []models.ChangeEvent {
	return []models.ChangeEvent{
		{Type: models.ChangeNew, CanonicalID: "de_ber_10115_apa_rent_1200_65_3_59f24771", RunID: "run-1"},
		{Type: models.ChangePriceChange, CanonicalID: "de_unk_00000_hou_sale_350000_120_5_3c68a7f5", RunID: "run-1"},
		{Type: models.ChangeNew, CanonicalID: "de_ham_20095_apa_rent_900_40_1_1a2b3c4d", RunID: "run-1"},
	}
}

func TestSummary(t *testing.T) {
	got := Summary(sampleEvents(), models.RunStats{RunID: "run-1"})
	want := "3 changes in run run-1: NEW=2, PRICE_CHANGE=1"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
	if got := Summary(sampleEvents()[:1], models.RunStats{RunID: "r"}); got != "1 change in run r: NEW=1" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestWebhookPostsPayload(t *testing.T) {
	var got WebhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, utils.NewNopLogger())
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	wh.now = func() time.Time { return fixed }

	if err := wh.Notify(context.Background(), sampleEvents(), models.RunStats{RunID: "run-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if len(got.Events) != 3 || !got.Timestamp.Equal(fixed) || got.Summary == "" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNon2xxIsNotAnError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, utils.NewNopLogger())
	if err := wh.Notify(context.Background(), sampleEvents(), models.RunStats{}); err != nil {
		t.Errorf("Notify returned %v for a 500", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retry)", calls)
	}
}

func TestWebhookSkipsEmptyRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("webhook called without events")
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, utils.NewNopLogger()).Notify(context.Background(), nil, models.RunStats{}); err != nil {
		t.Errorf("Notify: %v", err)
	}
}

func TestWebhookTransportError(t *testing.T) {
	wh := NewWebhook("http://127.0.0.1:1/hook", utils.NewNopLogger())
	if err := wh.Notify(context.Background(), sampleEvents(), models.RunStats{}); err == nil {
		t.Error("expected transport error")
	}
}

func TestKafkaPublisherKeysByCanonicalID(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	events := sampleEvents()
	for _, e := range events {
		want := e.CanonicalID
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != want {
				return fmt.Errorf("key = %q, want %q", key, want)
			}
			if msg.Topic != "listing-changes" {
				return fmt.Errorf("topic = %q", msg.Topic)
			}
			return nil
		})
	}

	pub := newKafkaPublisher(producer, "listing-changes", utils.NewNopLogger())
	if err := pub.Notify(context.Background(), events, models.RunStats{RunID: "run-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestKafkaPublisherFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	pub := newKafkaPublisher(producer, "listing-changes", utils.NewNopLogger())
	if err := pub.Notify(context.Background(), sampleEvents()[:1], models.RunStats{}); err == nil {
		t.Error("expected publish error")
	}
	_ = pub.Close()
}
