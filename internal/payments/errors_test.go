package payments

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyFailureByCode(t *testing.T) {
	cases := []struct {
		rawCode string
		want    FailureCode
	}{
		{"BAD_REQUEST_ERROR", FailureInvalidCard},
		{"INVALID_CARD_NUMBER", FailureInvalidCard},
		{"card_expired", FailureInvalidCard},
		{"PAYMENT_DECLINED", FailureCardDeclined},
		{"AUTHORIZATION_FAILED", FailureCardDeclined},
		{"INSUFFICIENT_FUNDS", FailureInsufficientFunds},
		{"PAYMENT_CANCELLED", FailureUserCancelled},
		{"TIMED_OUT", FailureTimeout},
		{"UPI_LIMIT_EXCEEDED", FailureUPILimitExceeded},
		{"UPI_APP_UNAVAILABLE", FailureUPIUnavailable},
		{"ISSUER_DOWN", FailureBankError},
		{"NETWORK_ERROR", FailureNetworkError},
	}
	for _, tc := range cases {
		if got := ClassifyFailure(tc.rawCode, ""); got != tc.want {
			t.Fatalf("ClassifyFailure(%q) = %s, want %s", tc.rawCode, got, tc.want)
		}
	}
}

func TestClassifyFailureFallsBackToMessage(t *testing.T) {
	cases := []struct {
		message string
		want    FailureCode
	}{
		{"Payment declined by issuer", FailureCardDeclined},
		{"insufficient balance in account", FailureInsufficientFunds},
		{"transaction cancelled by user", FailureUserCancelled},
		{"gateway timed out waiting for bank", FailureTimeout},
		{"invalid card supplied", FailureInvalidCard},
		{"bank systems under maintenance", FailureBankError},
		{"network unreachable", FailureNetworkError},
		{"UPI app not responding", FailureUPIUnavailable},
	}
	for _, tc := range cases {
		if got := ClassifyFailure("", tc.message); got != tc.want {
			t.Fatalf("ClassifyFailure(msg=%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassifyFailureUnknown(t *testing.T) {
	if got := ClassifyFailure("SOMETHING_NOVEL", "the stars were wrong"); got != FailureUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := ClassifyFailure("", ""); got != FailureUnknown {
		t.Fatalf("expected unknown for empty inputs, got %s", got)
	}
}

func TestGatewayErrorMessageEchoesRawCode(t *testing.T) {
	err := NewGatewayError("razorpay", "SOMETHING_NOVEL", "gateway said no")
	if err.Code != FailureUnknown {
		t.Fatalf("expected unknown classification, got %s", err.Code)
	}
	msg := err.Message()
	if msg.Title == "" || msg.Action == "" {
		t.Fatalf("unknown failure must still render a full message, got %+v", msg)
	}
	if !strings.Contains(msg.Description, "SOMETHING_NOVEL") {
		t.Fatalf("description must echo the raw code, got %q", msg.Description)
	}
}

func TestGatewayErrorMessageCoversEveryCode(t *testing.T) {
	codes := []FailureCode{
		FailureCardDeclined,
		FailureInsufficientFunds,
		FailureUserCancelled,
		FailureTimeout,
		FailureInvalidCard,
		FailureBankError,
		FailureNetworkError,
		FailureUPIUnavailable,
		FailureUPILimitExceeded,
		FailureUnknown,
	}
	for _, code := range codes {
		err := &GatewayError{Provider: "razorpay", Code: code}
		msg := err.Message()
		if msg.Title == "" || msg.Description == "" || msg.Action == "" {
			t.Fatalf("code %s renders an incomplete message: %+v", code, msg)
		}
	}
}

func TestNewGatewayErrorNormalizesProvider(t *testing.T) {
	err := NewGatewayError("  RazorPay  ", "PAYMENT_DECLINED", "declined")
	if err.Provider != "razorpay" {
		t.Fatalf("expected lowered provider, got %q", err.Provider)
	}
	if err.RawCode != "PAYMENT_DECLINED" {
		t.Fatalf("raw code must be preserved, got %q", err.RawCode)
	}
	var target *GatewayError
	if !errors.As(err, &target) {
		t.Fatalf("gateway error must satisfy errors.As")
	}
}
