package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

func encodeEnvelope(t *testing.T, payload model.PaymentPayload) string {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func validEnvelope() model.PaymentPayload {
	return model.PaymentPayload{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     "base-sepolia",
		Payload: model.ExactScheme{
			Signature: "0xsig",
			Authorization: model.Authorization{
				From:  "0xPayer",
				To:    "0xMerchant",
				Value: "1000",
				Nonce: "0xabc",
			},
		},
	}
}

func TestDecodePayment(t *testing.T) {
	header := encodeEnvelope(t, validEnvelope())

	payload, err := DecodePayment(header)
	if err != nil {
		t.Fatalf("DecodePayment: %v", err)
	}
	if payload.Payload.Authorization.From != "0xPayer" {
		t.Fatalf("payer mismatch: %q", payload.Payload.Authorization.From)
	}
	if payload.Network != "base-sepolia" {
		t.Fatalf("network mismatch: %q", payload.Network)
	}
}

func TestDecodePaymentMissingHeader(t *testing.T) {
	for _, header := range []string{"", "   "} {
		if _, err := DecodePayment(header); !errors.Is(err, apperrors.ErrMissingPayment) {
			t.Fatalf("DecodePayment(%q): expected ErrMissingPayment, got %v", header, err)
		}
	}
}

func TestDecodePaymentRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not base64":   "!!not-base64!!",
		"not json":     base64.StdEncoding.EncodeToString([]byte("pay me")),
		"json scalar":  base64.StdEncoding.EncodeToString([]byte(`"just a string"`)),
		"empty object": base64.StdEncoding.EncodeToString([]byte(`{}`)),
	}

	for name, header := range cases {
		if _, err := DecodePayment(header); !errors.Is(err, apperrors.ErrInvalidPayment) {
			t.Fatalf("%s: expected ErrInvalidPayment, got %v", name, err)
		}
	}
}

func TestDecodePaymentRejectsWrongVersion(t *testing.T) {
	payload := validEnvelope()
	payload.X402Version = 2

	if _, err := DecodePayment(encodeEnvelope(t, payload)); !errors.Is(err, apperrors.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for version 2, got %v", err)
	}
}

func TestDecodePaymentRejectsWrongScheme(t *testing.T) {
	payload := validEnvelope()
	payload.Scheme = "upto"

	if _, err := DecodePayment(encodeEnvelope(t, payload)); !errors.Is(err, apperrors.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for scheme %q, got %v", payload.Scheme, err)
	}
}

func TestDecodePaymentRequiresPayer(t *testing.T) {
	payload := validEnvelope()
	payload.Payload.Authorization.From = ""

	if _, err := DecodePayment(encodeEnvelope(t, payload)); !errors.Is(err, apperrors.ErrNoPayer) {
		t.Fatalf("expected ErrNoPayer, got %v", err)
	}
}

func TestEncodeSettlementRoundTrip(t *testing.T) {
	in := &model.SettleResponse{Success: true, Transaction: "0xtx", Network: "base-sepolia", Payer: "0xPayer"}

	header, err := EncodeSettlement(in)
	if err != nil {
		t.Fatalf("EncodeSettlement: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		t.Fatalf("header is not base64: %v", err)
	}

	var out model.SettleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("header is not json: %v", err)
	}
	if out != *in {
		t.Fatalf("settlement round-trip mismatch: %+v", out)
	}
}

func TestFacilitatorClient(t *testing.T) {
	var gotVerify, gotSettle facilitatorRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}

		switch r.URL.Path {
		case "/verify":
			if err := json.NewDecoder(r.Body).Decode(&gotVerify); err != nil {
				t.Errorf("decode verify request: %v", err)
			}
			json.NewEncoder(w).Encode(model.VerifyResponse{IsValid: true, Payer: "0xPayer"})
		case "/settle":
			if err := json.NewDecoder(r.Body).Decode(&gotSettle); err != nil {
				t.Errorf("decode settle request: %v", err)
			}
			json.NewEncoder(w).Encode(model.SettleResponse{Success: true, Transaction: "0xtx", Payer: "0xPayer"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewFacilitatorClient(srv.URL+"/", 5*time.Second)
	payload := validEnvelope()
	reqs := &model.PaymentRequirements{Scheme: SchemeExact, Network: "base-sepolia", MaxAmountRequired: "1000"}

	verify, err := client.Verify(context.Background(), &payload, reqs)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verify.IsValid || verify.Payer != "0xPayer" {
		t.Fatalf("unexpected verify response: %+v", verify)
	}
	if gotVerify.X402Version != Version {
		t.Fatalf("verify request carried version %d", gotVerify.X402Version)
	}
	if gotVerify.PaymentPayload.Payload.Authorization.From != "0xPayer" {
		t.Fatalf("verify request lost the payload: %+v", gotVerify.PaymentPayload)
	}
	if gotVerify.PaymentRequirements.MaxAmountRequired != "1000" {
		t.Fatalf("verify request lost the requirements: %+v", gotVerify.PaymentRequirements)
	}

	settle, err := client.Settle(context.Background(), &payload, reqs)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !settle.Success || settle.Transaction != "0xtx" {
		t.Fatalf("unexpected settle response: %+v", settle)
	}
	if gotSettle.PaymentPayload.Scheme != SchemeExact {
		t.Fatalf("settle request lost the payload: %+v", gotSettle.PaymentPayload)
	}
}

func TestFacilitatorClientNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewFacilitatorClient(srv.URL, 5*time.Second)
	payload := validEnvelope()

	if _, err := client.Verify(context.Background(), &payload, &model.PaymentRequirements{}); err == nil {
		t.Fatal("expected error on facilitator 500")
	}
}
