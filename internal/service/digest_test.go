package service

import (
	"context"
	"testing"

	"battlelog-tracker/internal/domain"
)

func TestLatestLossesScansInCacheOrder(t *testing.T) {
	defenseLoss := domain.BattleRecord{
		Date:     "2025-06-09 00:00:00",
		Attacker: team("勝者", domain.OutcomeWin, "E"),
		Defender: team("敗者", domain.OutcomeLose, "A", "Unknown", "", "", "S1", "Both"),
	}
	bothLost := r1()
	bothLost.Date = "2025-06-08 00:00:00"
	bothLost.Defender.Outcome = domain.OutcomeLose
	noneLost := r1()
	noneLost.Date = "2025-06-07 00:00:00"
	noneLost.Attacker.Outcome = domain.OutcomeWin

	f := newFixture(t, []domain.BattleRecord{r1(), defenseLoss, bothLost, noneLost}, nil)

	digests, err := f.digest.LatestLosses(context.Background(), 10, "", false)
	if err != nil {
		t.Fatalf("latest losses: %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("expected anomalies to be skipped, got %d digests", len(digests))
	}

	first := digests[0]
	if first.Side != domain.SideAttack || first.Player != "先生" || first.Date != "2025-06-10 22:00:00" {
		t.Fatalf("unexpected first digest %+v", first)
	}

	second := digests[1]
	if second.Side != domain.SideDefense || second.Player != "敗者" {
		t.Fatalf("unexpected second digest %+v", second)
	}
	wantIcons := [domain.CompositionSize]string{"a.png", "", "", "", "s1.png", "both-special.png"}
	for i, want := range wantIcons {
		if got := second.Characters[i].Icon; got != want {
			t.Errorf("slot %d (%q): expected icon %q, got %q", i, second.Characters[i].Name, want, got)
		}
	}
}

func TestLatestLossesStopsAtN(t *testing.T) {
	recs := make([]domain.BattleRecord, 5)
	for i := range recs {
		recs[i] = r1()
	}
	f := newFixture(t, recs, nil)

	digests, err := f.digest.LatestLosses(context.Background(), 3, "", false)
	if err != nil {
		t.Fatalf("latest losses: %v", err)
	}
	if len(digests) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(digests))
	}
}

func TestLatestLossesNonPositiveN(t *testing.T) {
	f := newFixture(t, []domain.BattleRecord{r1()}, nil)

	for _, n := range []int{0, -1} {
		digests, err := f.digest.LatestLosses(context.Background(), n, "", false)
		if err != nil {
			t.Fatalf("latest losses: %v", err)
		}
		if digests == nil || len(digests) != 0 {
			t.Fatalf("n=%d: expected an empty list, got %v", n, digests)
		}
	}
	if calls := f.source.calls.Load(); calls != 0 {
		t.Fatalf("expected no fetch for n <= 0, got %d", calls)
	}
}

func TestLatestLossesExcludeFederated(t *testing.T) {
	fed := r1()
	fed.Date = "2025-06-11 00:00:00"
	f := newFixture(t, []domain.BattleRecord{r1()}, []domain.BattleRecord{fed})

	digests, err := f.digest.LatestLosses(context.Background(), 10, "", true)
	if err != nil {
		t.Fatalf("latest losses: %v", err)
	}
	if len(digests) != 1 || digests[0].Origin != domain.OriginSelfHosted {
		t.Fatalf("expected only the self-hosted loss, got %+v", digests)
	}
}

func TestIconLookupPrefersRosterBySlot(t *testing.T) {
	l := NewIconLookup(newFakeRosters().strikers, newFakeRosters().specials)

	tests := []struct {
		name string
		slot int
		want string
	}{
		{"Both", 0, "both-striker.png"},
		{"Both", 4, "both-special.png"},
		{"S1", 1, "s1.png"},
		{"A", 5, "a.png"},
		{"Ｂoth", 0, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := l.Icon(tt.name, tt.slot); got != tt.want {
			t.Errorf("Icon(%q, %d) = %q, want %q", tt.name, tt.slot, got, tt.want)
		}
	}
}
