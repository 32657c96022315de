package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"battlelog-tracker/internal/database"
	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
)

func sampleRecords() []domain.BattleRecord {
	return []domain.BattleRecord{
		{
			Date:     "2025-06-10 12:00:00",
			Attacker: domain.Team{Player: "先生", Outcome: domain.OutcomeLose, Characters: domain.Composition{"ホシノ", "シロコ", "ノノミ", "セリカ", "アヤネ", "ヒフミ"}},
			Defender: domain.Team{Player: "相手", Outcome: domain.OutcomeWin, Characters: domain.Composition{"ヒナ", "アコ", "イオリ", "チナツ", "", "ハルナ"}},
			Origin:   domain.OriginSelfHosted,
		},
		{
			Date:     "2025-06-09 08:30:00",
			Attacker: domain.Team{Player: "B", Outcome: domain.OutcomeWin},
			Defender: domain.Team{Player: "C", Outcome: domain.OutcomeLose},
			Origin:   domain.OriginFederated,
		},
	}
}

func openStores(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "snapshots.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bolt, err := OpenBoltSnapshotStore(filepath.Join(dir, "snapshots.bolt"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	return map[string]SnapshotStore{
		"sqlite": NewSQLiteSnapshotStore(db, zerolog.Nop()),
		"bolt":   bolt,
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleRecords()

			if err := store.Save(ctx, "s2", want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx, "s2")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d records, got %d", len(want), len(got))
			}
			for i := range want {
				w := want[i]
				w.Season = "s2"
				if got[i] != w {
					t.Fatalf("record %d: expected %+v, got %+v", i, w, got[i])
				}
			}
		})
	}
}

func TestSnapshotStoreOverwrites(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, "s1", sampleRecords()); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Save(ctx, "s1", sampleRecords()[:1]); err != nil {
				t.Fatalf("second save: %v", err)
			}
			got, err := store.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected overwrite to leave 1 record, got %d", len(got))
			}
		})
	}
}

func TestSnapshotStoreMissingSeason(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "never-built")
			if !errors.Is(err, ErrSnapshotNotFound) {
				t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
			}
		})
	}
}

func TestSnapshotStoreEmptySeason(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, "empty", nil); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx, "empty")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected no records, got %d", len(got))
			}
		})
	}
}

func TestOpenBoltSnapshotStoreOnDirectory(t *testing.T) {
	_, err := OpenBoltSnapshotStore(t.TempDir(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected opening a directory to fail")
	}
	if !strings.HasPrefix(err.Error(), "failed to open snapshot db") {
		t.Fatalf("unexpected error %q", err)
	}
}
