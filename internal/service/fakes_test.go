package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/repository"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type fakeRecordSource struct {
	mu      sync.Mutex
	records map[domain.Origin][]domain.BattleRecord
	errs    map[domain.Origin]error
	// closed to let blocked fetches proceed; nil means no blocking
	release chan struct{}

	calls     atomic.Int32
	selfCalls atomic.Int32
}

func newFakeRecordSource(self, fed []domain.BattleRecord) *fakeRecordSource {
	return &fakeRecordSource{
		records: map[domain.Origin][]domain.BattleRecord{
			domain.OriginSelfHosted: self,
			domain.OriginFederated:  fed,
		},
		errs: map[domain.Origin]error{},
	}
}

func (f *fakeRecordSource) FetchRecords(ctx context.Context, season string, origin domain.Origin) ([]domain.BattleRecord, error) {
	f.calls.Add(1)
	if origin == domain.OriginSelfHosted {
		f.selfCalls.Add(1)
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[origin]; err != nil {
		return nil, err
	}
	// hand out a copy, as a real fetch would
	return append([]domain.BattleRecord(nil), f.records[origin]...), nil
}

func (f *fakeRecordSource) set(origin domain.Origin, recs []domain.BattleRecord, err error) {
	f.mu.Lock()
	f.records[origin] = recs
	f.errs[origin] = err
	f.mu.Unlock()
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]domain.BattleRecord
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]domain.BattleRecord{}}
}

func (s *memStore) Load(ctx context.Context, season string) ([]domain.BattleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.data[season]
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	return append([]domain.BattleRecord(nil), recs...), nil
}

func (s *memStore) Save(ctx context.Context, season string, records []domain.BattleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[season] = append([]domain.BattleRecord(nil), records...)
	return nil
}

func (s *memStore) get(season string) ([]domain.BattleRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.data[season]
	return recs, ok
}

type fakeRosters struct {
	mu       sync.Mutex
	strikers []domain.Character
	specials []domain.Character
	icons    domain.IconMap
	err      error
	calls    atomic.Int32
}

func (f *fakeRosters) FetchStrikers(ctx context.Context) ([]domain.Character, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strikers, f.err
}

func (f *fakeRosters) FetchSpecials(ctx context.Context) ([]domain.Character, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specials, f.err
}

func (f *fakeRosters) FetchIconMap(ctx context.Context) (domain.IconMap, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.icons, nil
}

var testIcons = domain.IconMap{
	domain.IconWin:     "win.png",
	domain.IconLose:    "lose.png",
	domain.IconAttack:  "attack.png",
	domain.IconDefense: "defense.png",
}

func newFakeRosters() *fakeRosters {
	return &fakeRosters{
		strikers: []domain.Character{{Name: "A", Icon: "a.png"}, {Name: "Both", Icon: "both-striker.png"}},
		specials: []domain.Character{{Name: "S1", Icon: "s1.png"}, {Name: "Both", Icon: "both-special.png"}},
		icons:    testIcons,
	}
}

const testSeason = "s2"

func team(player string, outcome domain.Outcome, chars ...string) domain.Team {
	t := domain.Team{Player: player, Outcome: outcome}
	copy(t.Characters[:], chars)
	return t
}

// r1 is the attacker composition [A,B,C,D,S1,S2] losing to the defender.
func r1() domain.BattleRecord {
	return domain.BattleRecord{
		Date:     "2025-06-10 22:00:00",
		Attacker: team("先生", domain.OutcomeLose, "A", "B", "C", "D", "S1", "S2"),
		Defender: team("相手", domain.OutcomeWin, "E", "F", "G", "H", "S3", "S4"),
	}
}

type fixture struct {
	source  *fakeRecordSource
	store   *memStore
	rosters *fakeRosters
	seasons *SeasonLogCache
	catalog *CharacterCatalog
	search  *SearchService
	digest  *DigestService
}

func newFixture(t *testing.T, self, fed []domain.BattleRecord) *fixture {
	t.Helper()
	f := &fixture{
		source:  newFakeRecordSource(self, fed),
		store:   newMemStore(),
		rosters: newFakeRosters(),
	}
	logger := zerolog.Nop()
	f.seasons = NewSeasonLogCache(f.source, f.store, testSeason, logger, nil)
	f.catalog = NewCharacterCatalog(f.rosters, 6*time.Hour, clockwork.NewFakeClock(), logger, nil)
	f.search = NewSearchService(f.seasons, f.catalog, logger, nil)
	f.digest = NewDigestService(f.seasons, f.catalog, logger, nil)
	return f
}

var errUnavailable = errors.New("sheet unavailable")

func runtimeYield() {
	time.Sleep(time.Millisecond)
}
