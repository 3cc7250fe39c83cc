package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"peachhaus_crm_backend/platform/logger"
)

type fakeProvider struct {
	name  string
	err   error
	calls int
	last  SMS
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SendSMS(ctx context.Context, msg SMS) (Receipt, error) {
	f.calls++
	f.last = msg
	if f.err != nil {
		return Receipt{}, f.err
	}
	return Receipt{Provider: f.name, MessageID: f.name + "-msg-1"}, nil
}

func TestSendFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "ghl"}
	fallback := &fakeProvider{name: "twilio"}
	sender := NewMultiSenderWithProviders(logger.New("test"), primary, fallback)

	receipt, err := sender.Send(context.Background(), "4045551234", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.Provider != "ghl" {
		t.Fatalf("provider = %q", receipt.Provider)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not be attempted when the primary succeeds")
	}
}

func TestSendFallsThroughInOrder(t *testing.T) {
	primary := &fakeProvider{name: "ghl", err: errors.New("dnd api down")}
	second := &fakeProvider{name: "twilio", err: errors.New("auth failure")}
	third := &fakeProvider{name: "telnyx"}
	sender := NewMultiSenderWithProviders(logger.New("test"), primary, second, third)

	receipt, err := sender.Send(context.Background(), "4045551234", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.Provider != "telnyx" {
		t.Fatalf("provider = %q", receipt.Provider)
	}
	if primary.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Fatalf("attempt counts = %d, %d, %d", primary.calls, second.calls, third.calls)
	}
}

func TestSendAllProvidersFail(t *testing.T) {
	first := &fakeProvider{name: "ghl", err: errors.New("boom")}
	second := &fakeProvider{name: "twilio", err: errors.New("bang")}
	sender := NewMultiSenderWithProviders(logger.New("test"), first, second)

	_, err := sender.Send(context.Background(), "4045551234", "hello")
	if err == nil {
		t.Fatal("expected an error when every provider fails")
	}
	if !strings.Contains(err.Error(), "ghl") || !strings.Contains(err.Error(), "twilio") {
		t.Fatalf("error should name each failed provider: %v", err)
	}
}

func TestSendNormalizesDestination(t *testing.T) {
	p := &fakeProvider{name: "ghl"}
	sender := NewMultiSenderWithProviders(logger.New("test"), p)

	if _, err := sender.Send(context.Background(), "(404) 555-1234", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if p.last.To != "+14045551234" {
		t.Fatalf("destination = %q, want +14045551234", p.last.To)
	}
}

func TestSendMalformedNumberPassesThrough(t *testing.T) {
	p := &fakeProvider{name: "ghl"}
	sender := NewMultiSenderWithProviders(logger.New("test"), p)

	if _, err := sender.Send(context.Background(), "5551234", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if p.last.To != "5551234" {
		t.Fatalf("destination = %q, want unchanged pass-through", p.last.To)
	}
}

func TestSendNoProviders(t *testing.T) {
	sender := NewMultiSenderWithProviders(logger.New("test"))
	if _, err := sender.Send(context.Background(), "4045551234", "hello"); err == nil {
		t.Fatal("expected an error with an empty provider chain")
	}
}
