package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/notify"
	"github.com/ewhitaker/larder/internal/record"
)

func testMember() *model.Member {
	return &model.Member{
		Meta:  record.Meta{ID: "m1", HouseholdID: "hh1"},
		Name:  "Alice",
		Email: "alice@example.com",
	}
}

func testMessage() notify.Message {
	return notify.Message{Subject: "Low stock: milk", Text: "milk is low", HTML: "<p>milk is low</p>"}
}

// fastClient returns a client pointed at the test server with no backoff
// delay between retries.
func fastClient(url string) *Client {
	c := NewClient("token", "from@example.com", WithAPIURL(url))
	c.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return c
}

func TestSendSuccess(t *testing.T) {
	var got postmarkEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Postmark-Server-Token") != "token" {
			t.Errorf("missing server token header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	if err := c.Send(context.Background(), testMember(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Low stock: milk" {
		t.Errorf("payload = %+v", got)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	if err := c.Send(context.Background(), testMember(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestSendClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	err := c.Send(context.Background(), testMember(), testMessage())
	var nu *fault.NotifierUnavailable
	if !errors.As(err, &nu) {
		t.Fatalf("expected NotifierUnavailable, got %v", err)
	}
	if !nu.Permanent {
		t.Error("4xx should be permanent")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
}

func TestSendExhaustedRetriesIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	err := c.Send(context.Background(), testMember(), testMessage())
	var nu *fault.NotifierUnavailable
	if !errors.As(err, &nu) {
		t.Fatalf("expected NotifierUnavailable, got %v", err)
	}
	if nu.Permanent {
		t.Error("exhausted 5xx retries should stay transient")
	}
}

func TestSendUnconfigured(t *testing.T) {
	c := NewClient("", "from@example.com")
	err := c.Send(context.Background(), testMember(), testMessage())
	var nu *fault.NotifierUnavailable
	if !errors.As(err, &nu) || !nu.Permanent {
		t.Fatalf("expected permanent NotifierUnavailable, got %v", err)
	}
}

func TestSendNoRecipientAddress(t *testing.T) {
	c := NewClient("token", "from@example.com")
	m := testMember()
	m.Email = ""
	err := c.Send(context.Background(), m, testMessage())
	var nu *fault.NotifierUnavailable
	if !errors.As(err, &nu) || !nu.Permanent {
		t.Fatalf("expected permanent NotifierUnavailable, got %v", err)
	}
}
