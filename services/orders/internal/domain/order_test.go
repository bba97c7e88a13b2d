package domain

import (
	"testing"
	"time"
)

func TestPriceOrderMatrix(t *testing.T) {
	cases := []struct {
		name           string
		firstOrder     bool
		paidSub        bool
		includesTablet bool
		wantTotal      float64
		wantFree       bool
	}{
		{"first order with paid subscription", true, true, false, 0, true},
		{"first order with paid subscription plus tablet", true, true, true, 499, true},
		{"first order on trial", true, false, false, 50, false},
		{"repeat order with paid subscription", false, true, false, 50, false},
		{"repeat order plus tablet", false, true, true, 549, false},
		{"repeat order on trial plus tablet", false, false, true, 549, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := PriceOrder(tc.firstOrder, tc.paidSub, tc.includesTablet)
			if q.TotalCost != tc.wantTotal {
				t.Errorf("expected total %.0f, got %.0f", tc.wantTotal, q.TotalCost)
			}
			if q.FirstOrderFree != tc.wantFree {
				t.Errorf("expected first_order_free=%v, got %v", tc.wantFree, q.FirstOrderFree)
			}
			if q.TotalCost != q.BasePackCost+q.TabletCost {
				t.Errorf("total %.0f does not equal base %.0f + tablet %.0f", q.TotalCost, q.BasePackCost, q.TabletCost)
			}
		})
	}
}

func TestEstimateDelivery(t *testing.T) {
	// Monday 2026-03-02
	monday := func(hour int) time.Time {
		return time.Date(2026, 3, 2, hour, 30, 0, 0, time.UTC)
	}

	t.Run("morning order lands same day", func(t *testing.T) {
		eta := EstimateDelivery(monday(9))
		want := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
		if !eta.Equal(want) {
			t.Errorf("expected %v, got %v", want, eta)
		}
	})

	t.Run("evening order rolls to next morning", func(t *testing.T) {
		eta := EstimateDelivery(monday(18))
		want := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		if !eta.Equal(want) {
			t.Errorf("expected %v, got %v", want, eta)
		}
	})

	t.Run("friday evening skips the weekend", func(t *testing.T) {
		friday := time.Date(2026, 3, 6, 19, 0, 0, 0, time.UTC)
		eta := EstimateDelivery(friday)
		if eta.Weekday() != time.Monday {
			t.Errorf("expected a Monday delivery, got %v", eta.Weekday())
		}
		if eta.Hour() != 10 {
			t.Errorf("expected a 10:00 delivery, got %d:00", eta.Hour())
		}
	})
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusReceived, StatusPreparing, true},
		{StatusPreparing, StatusConfiguring, true},
		{StatusConfiguring, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusReceived, StatusDelivered, true}, // fast-track
		{StatusDelivered, StatusPreparing, false},
		{StatusPreparing, StatusReceived, false},
		{StatusReceived, StatusReceived, false},
		{StatusReceived, OrderStatus("lost"), false},
	}

	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDeliveryAddressValidate(t *testing.T) {
	valid := DeliveryAddress{
		Line1:         "Unit 4, Marina Plaza",
		City:          "Dubai",
		Emirate:       "Dubai",
		ContactNumber: "+9715xxxxxxx",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected a complete address to validate, got %v", err)
	}

	for _, mutate := range []func(*DeliveryAddress){
		func(a *DeliveryAddress) { a.Line1 = " " },
		func(a *DeliveryAddress) { a.City = "" },
		func(a *DeliveryAddress) { a.Emirate = "" },
		func(a *DeliveryAddress) { a.ContactNumber = "" },
	} {
		a := valid
		mutate(&a)
		if err := a.Validate(); err == nil {
			t.Errorf("expected %+v to fail validation", a)
		}
	}
}
