package models

import (
	"testing"
	"time"
)

func TestPlanIsValid(t *testing.T) {
	tests := []struct {
		plan Plan
		want bool
	}{
		{PlanFree, true},
		{PlanPro, true},
		{"ENTERPRISE", false},
		{"pro", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.plan.IsValid(); got != tt.want {
			t.Errorf("Plan(%q).IsValid() = %v, want %v", tt.plan, got, tt.want)
		}
	}
}

func TestPaymentProviderIsValid(t *testing.T) {
	tests := []struct {
		provider PaymentProvider
		want     bool
	}{
		{ProviderStripe, true},
		{ProviderPaddle, true},
		// Operator issuance bypasses the billing providers; it is not a
		// valid source for incoming payment events.
		{ProviderOperator, false},
		{"square", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.provider.IsValid(); got != tt.want {
			t.Errorf("PaymentProvider(%q).IsValid() = %v, want %v", tt.provider, got, tt.want)
		}
	}
}

func TestCustomerSetProviderID(t *testing.T) {
	c := NewCustomer("ids@example.com")

	c.SetProviderID(ProviderStripe, "cus_stripe")
	c.SetProviderID(ProviderPaddle, "ctm_paddle")
	c.SetProviderID(ProviderOperator, "ignored")

	if c.StripeCustomerID != "cus_stripe" {
		t.Errorf("StripeCustomerID = %q", c.StripeCustomerID)
	}
	if c.PaddleCustomerID != "ctm_paddle" {
		t.Errorf("PaddleCustomerID = %q", c.PaddleCustomerID)
	}
}

func TestLicenseIsActive(t *testing.T) {
	l := &License{}
	if !l.IsActive() {
		t.Error("IsActive() = false for unrevoked license")
	}

	now := time.Now()
	l.RevokedAt = &now
	if l.IsActive() {
		t.Error("IsActive() = true for revoked license")
	}
}
