package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestPromoCode_CheckAvailable(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		p    PromoCode
		want error
	}{
		{"active unlimited", PromoCode{Status: StatusActive}, nil},
		{"inactive", PromoCode{Status: StatusInactive}, ErrCodeUnavailable},
		{"not started", PromoCode{Status: StatusActive, ValidFrom: now.Add(time.Minute)}, ErrCodeUnavailable},
		{"ended", PromoCode{Status: StatusActive, ValidTo: now}, ErrCodeUnavailable},
		{"in window", PromoCode{Status: StatusActive, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour)}, nil},
		{"exhausted", PromoCode{Status: StatusActive, TotalQuantity: 3, ReservedQuantity: 1, UsedQuantity: 2}, ErrCodeExhausted},
		{"one left", PromoCode{Status: StatusActive, TotalQuantity: 3, ReservedQuantity: 1, UsedQuantity: 1}, nil},
	}
	for _, tt := range tests {
		err := tt.p.CheckAvailable(now)
		if tt.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if got := tt.p.IsAvailable(now); got != (tt.want == nil) {
			t.Fatalf("%s: IsAvailable = %v", tt.name, got)
		}
	}
}

func TestPromoCode_ReserveReleaseRedeem(t *testing.T) {
	now := time.Now()
	p := PromoCode{Status: StatusActive, TotalQuantity: 2}

	if err := p.Reserve(2, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := p.Reserve(1, now); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if clamped, err := p.Release(3); err != nil || !clamped || p.ReservedQuantity != 0 {
		t.Fatalf("expected clamped release to 0, got clamped=%v reserved=%d err=%v", clamped, p.ReservedQuantity, err)
	}
	if err := p.Reserve(1, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// 一个名额有预占覆盖，另一个占用剩余名额
	if err := p.Redeem(2); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if p.UsedQuantity != 2 || p.ReservedQuantity != 0 {
		t.Fatalf("unexpected counters: %+v", p)
	}
	if err := p.Redeem(1); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if err := p.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if s := p.Snapshot(); s.Total != 2 || s.Consumed != 2 || s.Available != 0 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
