package store

import (
	"strings"
	"testing"
	"time"
)

func TestInstanceKeys(t *testing.T) {
	if got := instancePK("abc-123"); got != "INSTANCE#abc-123" {
		t.Errorf("instancePK() = %s, want INSTANCE#abc-123", got)
	}
	if got := instanceSK(); got != "META" {
		t.Errorf("instanceSK() = %s, want META", got)
	}
}

func TestHistoryKeys(t *testing.T) {
	if got := historyPK("abc-123"); got != "INSTANCE#abc-123" {
		t.Errorf("historyPK() = %s, want INSTANCE#abc-123", got)
	}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	sk := historySK(ts, 42)
	if !strings.HasPrefix(sk, historyPrefix()) {
		t.Errorf("historySK() = %s, want prefix %s", sk, historyPrefix())
	}
	if want := "HIST#2026-01-02T03:04:05.000000006Z#00000042"; sk != want {
		t.Errorf("historySK() = %s, want %s", sk, want)
	}
}

func TestHistorySK_NormalizesZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	local := time.Date(2026, 1, 2, 5, 4, 5, 0, loc)
	utc := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if historySK(local, 1) != historySK(utc, 1) {
		t.Error("historySK() should normalize timestamps to UTC")
	}
}
