package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTokenDecodesBackendPayload(t *testing.T) {
	payload := `{"id":101,"userId":7,"serviceId":3,"tokenNumber":42,"status":"PENDING",
		"createdAt":"2026-01-12T08:00:00.123",
		"serviceType":{"id":3,"companyId":1,"companyName":"Acme","name":"Cashier","averageServiceTime":5}}`

	var token Token
	if err := json.Unmarshal([]byte(payload), &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.ID != 101 || token.TokenNumber != 42 || token.Status != StatusPending {
		t.Fatalf("unexpected token: %+v", token)
	}
	want := time.Date(2026, 1, 12, 8, 0, 0, 123000000, time.UTC)
	if !token.CreatedAt.Equal(want) {
		t.Fatalf("expected createdAt %v, got %v", want, token.CreatedAt.Time)
	}
	if token.ServiceName() != "Cashier" {
		t.Fatalf("expected service name Cashier, got %q", token.ServiceName())
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Fatalf("expected null to decode as zero time, got %v %v", ts, err)
	}
}

func TestTokenApplyPartial(t *testing.T) {
	base := Token{ID: 101, TokenNumber: 42, ServiceID: 3, UserID: 7, Status: StatusPending}
	calling := StatusCalling

	got := base.Apply(TokenPatch{ID: 101, Status: &calling})
	if got.Status != StatusCalling || got.TokenNumber != 42 || got.ServiceID != 3 {
		t.Fatalf("unexpected merge result: %+v", got)
	}
	if base.Status != StatusPending {
		t.Fatalf("apply must not mutate the receiver")
	}
	if got.Equal(base) {
		t.Fatalf("expected merged token to differ from base")
	}
	if !base.Apply(TokenPatch{}).Equal(base) {
		t.Fatalf("empty patch must be a no-op")
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"USER", RoleUser, true},
		{"ROLE_COMPANY_ADMIN", RoleCompanyAdmin, true},
		{"super_admin", RoleSuperAdmin, true},
		{"guest", "", false},
	}
	for _, tt := range cases {
		got, ok := ParseRole(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseRole(%q)=%q,%v want %q,%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
