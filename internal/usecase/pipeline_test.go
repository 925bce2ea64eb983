package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/topics"
)

var cycleTime = time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu     sync.Mutex
	rows   map[string]domain.TopicCandidate
	drafts map[string]domain.ContentDraft
}

func newMemoryStore(candidates ...domain.TopicCandidate) *memoryStore {
	s := &memoryStore{rows: map[string]domain.TopicCandidate{}, drafts: map[string]domain.ContentDraft{}}
	for _, c := range candidates {
		s.rows[c.ID] = c
	}
	return s
}

func (s *memoryStore) ListActive(_ context.Context, siteID string, intent domain.Intent) ([]domain.TopicCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TopicCandidate
	for _, c := range s.rows {
		if c.SiteID == siteID && c.Intent == intent && c.Status == domain.StatusActive {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.TopicCandidate) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *memoryStore) RecordUsage(_ context.Context, id, contentRef string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("candidate %s not found", id)
	}
	c.UsageCount++
	c.LastUsedAt = &now
	c.LastContentRef = contentRef
	s.rows[id] = c
	return nil
}

func (s *memoryStore) SaveTelemetry(_ context.Context, id string, t domain.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.rows[id]
	c.Telemetry = t
	s.rows[id] = c
	return nil
}

func (s *memoryStore) SaveScores(_ context.Context, scores map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, score := range scores {
		c := s.rows[id]
		c.PerformanceScore = score
		s.rows[id] = c
	}
	return nil
}

func (s *memoryStore) SaveDraft(_ context.Context, d domain.ContentDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[d.ID] = d
	return nil
}

func (s *memoryStore) get(id string) domain.TopicCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

type fakeGenerator struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (g *fakeGenerator) Generate(_ context.Context, siteID string, choice domain.TopicChoice) (domain.ContentDraft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, choice.ID)
	if err := g.fail[choice.ID]; err != nil {
		return domain.ContentDraft{}, err
	}
	return domain.ContentDraft{
		ID:      "draft-" + choice.ID,
		SiteID:  siteID,
		TopicID: choice.ID,
		Intent:  choice.Intent,
		Keyword: choice.Keyword,
		Title:   "About " + choice.Keyword,
	}, nil
}

type fakeFeed struct {
	data map[string]domain.Telemetry
	err  error
}

func (f fakeFeed) Fetch(_ context.Context, _ string, _ domain.Intent, ids []string) (map[string]domain.Telemetry, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]domain.Telemetry{}
	for _, id := range ids {
		if t, ok := f.data[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) PublishReport(_ context.Context, report string) error {
	n.messages = append(n.messages, report)
	return n.err
}

// firstRNG always picks the first element of the pool it draws from.
type firstRNG struct{}

func (firstRNG) Float64() float64 { return 0 }

func candidate(id, siteID string, intent domain.Intent, keyword string) domain.TopicCandidate {
	return domain.TopicCandidate{
		ID:      id,
		SiteID:  siteID,
		Intent:  intent,
		Keyword: keyword,
		Status:  domain.StatusActive,
		Source:  domain.SourcePool,
	}
}

func num(v float64) *float64 {
	return &v
}

func newTestPipeline(store *memoryStore, gen *fakeGenerator, sites []config.SiteConfig, mutate func(*PipelineDeps)) *Pipeline {
	picker := topics.NewPicker(topics.PickerDeps{
		Candidates: store,
		Policy:     topics.NewPolicy(topics.Options{RNG: firstRNG{}}),
	})
	deps := PipelineDeps{
		Sites:       sites,
		Picker:      picker,
		Candidates:  store,
		Scores:      store,
		Drafts:      store,
		Usage:       store,
		Concurrency: 2,
		MaxAttempts: 3,
	}
	if gen != nil {
		deps.Generator = gen
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewPipeline(deps)
}

func TestRunCycleGeneratesAndRecordsUsage(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		candidate("a1", "s1", domain.IntentService, "stroller rental"),
		candidate("b1", "s2", domain.IntentService, "crib rental"),
	)
	notifier := &fakeNotifier{}
	sites := []config.SiteConfig{
		{ID: "s1", Intents: []string{"service", "guide"}},
		{ID: "s2", Intents: []string{"service"}},
	}
	p := newTestPipeline(store, &fakeGenerator{}, sites, func(d *PipelineDeps) { d.Notifier = notifier })

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if report.Count(ScopeGenerated) != 2 || report.Count(ScopeSkipped) != 1 {
		t.Fatalf("unexpected report: %+v", report.Results)
	}
	if report.Results[0].SiteID != "s1" || report.Results[2].SiteID != "s2" {
		t.Fatalf("results should follow site order: %+v", report.Results)
	}

	for _, id := range []string{"a1", "b1"} {
		c := store.get(id)
		if c.UsageCount != 1 || c.LastContentRef != "draft-"+id {
			t.Fatalf("usage not recorded for %s: %+v", id, c)
		}
		if c.LastUsedAt == nil || !c.LastUsedAt.Equal(cycleTime) {
			t.Fatalf("unexpected last used for %s: %v", id, c.LastUsedAt)
		}
		if _, ok := store.drafts["draft-"+id]; !ok {
			t.Fatalf("draft for %s not saved", id)
		}
	}

	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "generated 2") {
		t.Fatalf("unexpected notification: %v", notifier.messages)
	}
}

func TestRunCycleRetriesWithExclusion(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		candidate("a", "s1", domain.IntentCompare, "pram vs stroller"),
		candidate("b", "s1", domain.IntentCompare, "crib vs bassinet"),
	)
	gen := &fakeGenerator{fail: map[string]error{"a": errors.New("model timeout")}}
	p := newTestPipeline(store, gen, []config.SiteConfig{{ID: "s1", Intents: []string{"compare"}}}, nil)

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	res := report.Results[0]
	if res.Status != ScopeGenerated || res.TopicID != "b" || res.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !slices.Equal(gen.calls, []string{"a", "b"}) {
		t.Fatalf("unexpected generation order: %v", gen.calls)
	}
	if store.get("a").UsageCount != 0 {
		t.Fatal("failed candidate must not be marked used")
	}
}

func TestRunCycleGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("model timeout")
	store := newMemoryStore(
		candidate("a", "s1", domain.IntentService, "k1"),
		candidate("b", "s1", domain.IntentService, "k2"),
		candidate("c", "s1", domain.IntentService, "k3"),
	)
	gen := &fakeGenerator{fail: map[string]error{"a": boom, "b": boom, "c": boom}}
	p := newTestPipeline(store, gen, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, func(d *PipelineDeps) {
		d.MaxAttempts = 2
	})

	report, err := p.RunCycle(context.Background(), cycleTime)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined generation error, got %v", err)
	}
	res := report.Results[0]
	if res.Status != ScopeFailed || res.Attempts != 2 || len(gen.calls) != 2 {
		t.Fatalf("unexpected result %+v calls %v", res, gen.calls)
	}
}

func TestRunCycleExhaustedPoolAfterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota exceeded")
	store := newMemoryStore(candidate("a", "s1", domain.IntentService, "k1"))
	gen := &fakeGenerator{fail: map[string]error{"a": boom}}
	p := newTestPipeline(store, gen, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, nil)

	report, err := p.RunCycle(context.Background(), cycleTime)
	if !errors.Is(err, boom) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if report.Results[0].Status != ScopeFailed || len(gen.calls) != 1 {
		t.Fatalf("unexpected result %+v", report.Results[0])
	}
}

func TestRunCycleUnknownIntentDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(candidate("a", "s1", domain.IntentService, "k1"))
	p := newTestPipeline(store, &fakeGenerator{}, []config.SiteConfig{{ID: "s1", Intents: []string{"news", "service"}}}, nil)

	report, err := p.RunCycle(context.Background(), cycleTime)
	if !errors.Is(err, topics.ErrUnknownIntent) {
		t.Fatalf("expected ErrUnknownIntent, got %v", err)
	}
	if report.Results[0].Status != ScopeFailed || report.Results[1].Status != ScopeGenerated {
		t.Fatalf("unexpected results: %+v", report.Results)
	}
}

func TestRunCycleRefreshesTelemetry(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		candidate("a", "s1", domain.IntentService, "k1"),
		candidate("b", "s1", domain.IntentService, "k2"),
	)
	feed := fakeFeed{data: map[string]domain.Telemetry{
		"a": {Impressions: num(1000), CTR: num(0.05)},
	}}
	p := newTestPipeline(store, nil, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, func(d *PipelineDeps) {
		d.Telemetry = feed
	})

	if _, err := p.RunCycle(context.Background(), cycleTime); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	a := store.get("a")
	if a.Telemetry.Impressions == nil || *a.Telemetry.Impressions != 1000 {
		t.Fatalf("telemetry not stored: %+v", a.Telemetry)
	}
	if a.PerformanceScore != 50 {
		t.Fatalf("expected aggregate score 50, got %f", a.PerformanceScore)
	}
	if b := store.get("b"); b.PerformanceScore != 0 || !b.Telemetry.Empty() {
		t.Fatalf("candidate without telemetry should stay untouched: %+v", b)
	}
}

func TestRunCycleTelemetryFailureStillPicks(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(candidate("a", "s1", domain.IntentService, "k1"))
	p := newTestPipeline(store, &fakeGenerator{}, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, func(d *PipelineDeps) {
		d.Telemetry = fakeFeed{err: errors.New("feed down")}
	})

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Results[0].Status != ScopeGenerated {
		t.Fatalf("unexpected result: %+v", report.Results[0])
	}
}

func TestRunCycleWithoutGeneratorOnlyPicks(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(candidate("a", "s1", domain.IntentService, "k1"))
	p := newTestPipeline(store, nil, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, nil)

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res := report.Results[0]; res.Status != ScopePicked || res.TopicID != "a" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.get("a").UsageCount != 0 {
		t.Fatal("a dry pick must not record usage")
	}
}

func TestRunCycleAppliesGroupKeyPrefixes(t *testing.T) {
	t.Parallel()

	other := candidate("a", "s1", domain.IntentService, "k1")
	other.GroupKey = "misc:toys"
	store := newMemoryStore(other)
	sites := []config.SiteConfig{{
		ID:               "s1",
		Intents:          []string{"service"},
		GroupKeyPrefixes: map[string][]string{"service": {"rental:"}},
	}}
	p := newTestPipeline(store, &fakeGenerator{}, sites, nil)

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Results[0].Status != ScopeSkipped {
		t.Fatalf("expected skipped scope, got %+v", report.Results[0])
	}
}

func TestRunCycleNotifierErrorIsReported(t *testing.T) {
	t.Parallel()

	boom := errors.New("telegram down")
	store := newMemoryStore(candidate("a", "s1", domain.IntentService, "k1"))
	p := newTestPipeline(store, &fakeGenerator{}, []config.SiteConfig{{ID: "s1", Intents: []string{"service"}}}, func(d *PipelineDeps) {
		d.Notifier = &fakeNotifier{err: boom}
	})

	report, err := p.RunCycle(context.Background(), cycleTime)
	if !errors.Is(err, boom) {
		t.Fatalf("expected notifier error, got %v", err)
	}
	if report.Count(ScopeGenerated) != 1 {
		t.Fatalf("generation should still succeed: %+v", report.Results)
	}
}

type countingSeeder struct {
	n   int
	err error
}

func (s countingSeeder) Seed(context.Context) (int, error) { return s.n, s.err }

func TestRunCycleSeedsFirst(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	p := newTestPipeline(store, nil, nil, func(d *PipelineDeps) { d.Seeder = countingSeeder{n: 4} })

	report, err := p.RunCycle(context.Background(), cycleTime)
	if err != nil || report.Seeded != 4 {
		t.Fatalf("unexpected seeding result: %d %v", report.Seeded, err)
	}

	boom := errors.New("bad seed")
	p = newTestPipeline(store, nil, nil, func(d *PipelineDeps) { d.Seeder = countingSeeder{err: boom} })
	if _, err := p.RunCycle(context.Background(), cycleTime); !errors.Is(err, boom) {
		t.Fatalf("expected seeding error, got %v", err)
	}
}

func TestReportMessage(t *testing.T) {
	t.Parallel()

	report := CycleReport{
		StartedAt: cycleTime,
		Results: []ScopeResult{
			{SiteID: "s1", Intent: domain.IntentService, Status: ScopeGenerated, Keyword: "crib rental", Title: "Crib rental guide"},
			{SiteID: "s1", Intent: domain.IntentGuide, Status: ScopeSkipped},
			{SiteID: "s2", Intent: domain.IntentCompare, Status: ScopeFailed, Err: errors.New("boom")},
		},
	}

	msg := report.Message()
	for _, want := range []string{
		"generated 1, picked 0, skipped 1, failed 1",
		`[ok] s1/service: crib rental -> "Crib rental guide"`,
		"[skip] s1/guide",
		"[fail] s2/compare: boom",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not contain %q", msg, want)
		}
	}
}
