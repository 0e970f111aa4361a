package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/integrity"
	"mercator-hq/arbiter/pkg/audit/logger"
	"mercator-hq/arbiter/pkg/audit/storage"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/decisiontest"
)

var (
	testKey = integrity.StaticKeySource("0123456789abcdef0123456789abcdef")
	day     = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
)

func newProtector(t *testing.T) *integrity.Protector {
	t.Helper()
	p, err := integrity.NewProtector(context.Background(), testKey, true)
	if err != nil {
		t.Fatalf("NewProtector() failed: %v", err)
	}
	return p
}

// countingStorage records calls so tests can assert storage was not touched.
type countingStorage struct {
	*storage.MemoryStorage
	queries int
}

func (c *countingStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.DecisionLog, error) {
	c.queries++
	return c.MemoryStorage.Query(ctx, q)
}

func (c *countingStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	c.queries++
	return c.MemoryStorage.Count(ctx, q)
}

// seed writes n logs one minute apart; every third log is denied and every
// fourth involves Indigenous data.
func seed(t *testing.T, store audit.Storage, p *integrity.Protector, n int) {
	t.Helper()
	i := 0
	l, err := logger.New(store, p, nil, logger.WithClock(func() time.Time {
		return day.Add(time.Duration(i) * time.Minute)
	}))
	if err != nil {
		t.Fatalf("logger.New() failed: %v", err)
	}
	defer l.Close()

	for i = 0; i < n; i++ {
		intent := decisiontest.NewIntent(fmt.Sprintf("intent-%d", i))
		intent.User.ID = fmt.Sprintf("user-%d", i%2)
		if i%4 == 0 {
			decisiontest.WithIndigenousData(intent, "Wurundjeri")
		}
		d := &decision.PolicyDecision{Decision: decision.Allow, EvaluatedPolicies: []string{"payments"}, Reason: "ok"}
		if i%3 == 0 {
			d.Decision = decision.Deny
			d.Reason = "denied"
		}
		if _, err := l.Log(context.Background(), intent, d); err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		query *audit.Query
		field string
	}{
		{"nil", nil, "query"},
		{"no start", &audit.Query{End: day}, "start"},
		{"no end", &audit.Query{Start: day}, "end"},
		{"inverted range", &audit.Query{Start: day, End: day.Add(-time.Hour)}, "start"},
		{"negative limit", &audit.Query{Start: day, End: day, Limit: -1}, "limit"},
		{"limit too large", &audit.Query{Start: day, End: day, Limit: MaxLimit + 1}, "limit"},
		{"negative offset", &audit.Query{Start: day, End: day, Offset: -1}, "offset"},
		{"bad sort field", &audit.Query{Start: day, End: day, SortBy: "amount"}, "sort_by"},
		{"bad sort order", &audit.Query{Start: day, End: day, SortOrder: "up"}, "sort_order"},
		{"bad classification", &audit.Query{Start: day, End: day, Classifications: []decision.Sensitivity{"top"}}, "classifications"},
		{"valid", &audit.Query{Start: day, End: day, SortBy: audit.SortUserID, SortOrder: "asc"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			var ve *decision.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func TestBuilder_Shortcuts(t *testing.T) {
	now := day.Add(12 * time.Hour)
	q, err := NewBuilder().
		WithClock(func() time.Time { return now }).
		RecentActivity(24*time.Hour).
		DeniedOnly().
		PrivacyLawOnly().
		IndigenousDataOnly().
		CrossBorderOnly().
		PrivacyLawOnly().
		HighSensitivityOnly().
		Page(10, 20).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if !q.End.Equal(now) || !q.Start.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("range = %v..%v", q.Start, q.End)
	}
	if q.Decision != decision.Deny {
		t.Errorf("Decision = %s, want deny", q.Decision)
	}
	want := []string{audit.FlagPrivacyAct, audit.FlagIndigenousData, audit.FlagCrossBorder}
	if len(q.ComplianceFlags) != len(want) {
		t.Fatalf("flags = %v, want %v", q.ComplianceFlags, want)
	}
	for i, f := range want {
		if q.ComplianceFlags[i] != f {
			t.Errorf("flags[%d] = %s, want %s", i, q.ComplianceFlags[i], f)
		}
	}
	if len(q.Classifications) != 2 {
		t.Errorf("Classifications = %v, want restricted and secret", q.Classifications)
	}
	if q.Offset != 10 || q.Limit != 20 {
		t.Errorf("page = %d/%d", q.Offset, q.Limit)
	}
}

func TestBuilder_RequiresTimeRange(t *testing.T) {
	_, err := NewBuilder().DeniedOnly().Build()
	if !decision.IsValidationError(err) {
		t.Errorf("Build() error = %v, want ValidationError", err)
	}
}

func TestEngine_ValidatesBeforeStorage(t *testing.T) {
	store := &countingStorage{MemoryStorage: storage.NewMemoryStorage()}
	engine := NewEngine(store, newProtector(t), nil, nil)

	_, err := engine.Query(context.Background(), &audit.Query{UserID: "user-1"})
	if !decision.IsValidationError(err) {
		t.Fatalf("Query() error = %v, want ValidationError", err)
	}
	if store.queries != 0 {
		t.Errorf("storage was queried %d times before validation", store.queries)
	}
}

func TestEngine_TotalIndependentOfLimit(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 12)
	engine := NewEngine(store, p, nil, nil)
	ctx := context.Background()

	small, err := engine.Query(ctx, &audit.Query{Start: day, End: day.Add(time.Hour), Limit: 1})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	large, err := engine.Query(ctx, &audit.Query{Start: day, End: day.Add(time.Hour), Limit: 1000})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}

	if small.TotalCount != 12 || large.TotalCount != 12 {
		t.Errorf("TotalCount = %d and %d, want 12 for both", small.TotalCount, large.TotalCount)
	}
	if !small.Pagination.HasMore || large.Pagination.HasMore {
		t.Errorf("HasMore = %v/%v, want true/false", small.Pagination.HasMore, large.Pagination.HasMore)
	}
	if small.Pagination.Returned != 1 || len(large.Logs) != 12 {
		t.Errorf("returned %d and %d logs", small.Pagination.Returned, len(large.Logs))
	}
}

func TestEngine_DefaultsAndOrdering(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 60)
	engine := NewEngine(store, p, nil, nil)

	res, err := engine.Query(context.Background(), &audit.Query{Start: day, End: day.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if res.Pagination.Limit != DefaultLimit || len(res.Logs) != DefaultLimit {
		t.Errorf("limit = %d, returned %d, want %d", res.Pagination.Limit, len(res.Logs), DefaultLimit)
	}
	for i := 1; i < len(res.Logs); i++ {
		if res.Logs[i].Timestamp.After(res.Logs[i-1].Timestamp) {
			t.Fatal("default order should be timestamp desc")
		}
	}
}

func TestEngine_FiltersAndOpensSealedFields(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 12)
	engine := NewEngine(store, p, nil, nil)

	q, err := NewBuilder().Between(day, day.Add(time.Hour)).IndigenousDataOnly().Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	res, err := engine.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if res.TotalCount != 3 {
		t.Fatalf("TotalCount = %d, want 3", res.TotalCount)
	}
	for _, log := range res.Logs {
		owners := log.Intent.Financial.IndigenousData.TraditionalOwners
		if len(owners) != 1 || owners[0] != "Wurundjeri" {
			t.Errorf("traditional owners = %v, want opened value", owners)
		}
		if log.Sealed != nil {
			t.Error("Sealed should be cleared after opening")
		}
	}
}

func TestEngine_IntegrityViolationIsFatal(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 1)

	logs, _ := store.Query(context.Background(), &audit.Query{})
	tampered := logs[0]
	tampered.Decision.Decision = decision.Allow
	tampered.ID = "tampered"
	if err := store.Store(context.Background(), tampered); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	engine := NewEngine(store, p, nil, nil)
	_, err := engine.Query(context.Background(), &audit.Query{Start: day, End: day.Add(time.Hour)})
	var iv *audit.IntegrityViolation
	if !errors.As(err, &iv) {
		t.Fatalf("Query() error = %v, want IntegrityViolation", err)
	}

	if _, err := engine.Get(context.Background(), "tampered"); !errors.As(err, &iv) {
		t.Errorf("Get() error = %v, want IntegrityViolation", err)
	}
}

func TestEngine_ResultCache(t *testing.T) {
	store := &countingStorage{MemoryStorage: storage.NewMemoryStorage()}
	p := newProtector(t)
	seed(t, store, p, 8)
	engine := NewEngine(store, p, NewMemoryResultCache(), nil)
	ctx := context.Background()
	q := &audit.Query{Start: day, End: day.Add(time.Hour), ComplianceFlags: []string{audit.FlagIndigenousData}}

	first, err := engine.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	calls := store.queries
	second, err := engine.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}

	if first.Performance.CacheHit || !second.Performance.CacheHit {
		t.Errorf("CacheHit = %v/%v, want false/true", first.Performance.CacheHit, second.Performance.CacheHit)
	}
	if store.queries != calls {
		t.Error("cached query should not reach storage")
	}
	if second.TotalCount != first.TotalCount {
		t.Errorf("TotalCount = %d, want %d", second.TotalCount, first.TotalCount)
	}
	if owners := second.Logs[0].Intent.Financial.IndigenousData.TraditionalOwners; len(owners) != 1 {
		t.Errorf("cached page not opened: %v", owners)
	}

	if err := engine.InvalidateCache(ctx); err != nil {
		t.Fatalf("InvalidateCache() failed: %v", err)
	}
	third, _ := engine.Query(ctx, q)
	if third.Performance.CacheHit {
		t.Error("query after invalidation should miss")
	}
}

func TestEngine_Stream(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 5)
	engine := NewEngine(store, p, nil, nil)

	logs, errCh, err := engine.Stream(context.Background(), &audit.Query{Start: day, End: day.Add(time.Hour), Limit: 1})
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}
	n := 0
	for range logs {
		n++
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if n != 5 {
		t.Errorf("streamed %d logs, want 5 (pagination ignored)", n)
	}
}

func TestEngine_MemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryResultCache()
	now := day
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "k"); !ok {
		t.Fatal("entry should be present before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Error("entry should expire at its TTL")
	}
}

// runCachedEngine checks that a second identical query is served from cache.
func runCachedEngine(t *testing.T, cache ResultCache) {
	t.Helper()
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 4)
	engine := NewEngine(store, p, cache, nil)
	q := &audit.Query{Start: day, End: day.Add(time.Hour)}

	if _, err := engine.Query(context.Background(), q); err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	res, err := engine.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if !res.Performance.CacheHit || res.TotalCount != 4 {
		t.Errorf("CacheHit = %v, TotalCount = %d", res.Performance.CacheHit, res.TotalCount)
	}
}

func TestEngine_WithMemoryCache(t *testing.T) {
	runCachedEngine(t, NewMemoryResultCache())
}

func TestEngine_SealedFieldTamperingIsViolation(t *testing.T) {
	src := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, src, p, 5)
	ctx := context.Background()

	logs, _ := src.Query(ctx, &audit.Query{SortOrder: "asc"})
	// Logs 0 and 4 carry sealed traditional owners; swapping them keeps
	// each hash intact but binds each ciphertext to the wrong log.
	first, last := logs[0], logs[4]
	first.Sealed[integrity.FieldTraditionalOwners], last.Sealed[integrity.FieldTraditionalOwners] =
		last.Sealed[integrity.FieldTraditionalOwners], first.Sealed[integrity.FieldTraditionalOwners]

	store := storage.NewMemoryStorage()
	for _, log := range logs {
		if err := store.Store(ctx, log); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	engine := NewEngine(store, p, nil, nil)
	res, err := engine.Verify(ctx, &audit.Query{Start: day, End: day.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("Violations = %+v, want 2", res.Violations)
	}
	want := audit.ViolationSealedField + ": " + integrity.FieldTraditionalOwners
	for _, v := range res.Violations {
		if v.Reason != want {
			t.Errorf("violation %s reason = %q, want %q", v.LogID, v.Reason, want)
		}
	}

	_, err = engine.Query(ctx, &audit.Query{Start: day, End: day.Add(time.Hour)})
	var iv *audit.IntegrityViolation
	if !errors.As(err, &iv) || iv.Reason != audit.ViolationSealedField {
		t.Errorf("Query() error = %v, want sealed field violation", err)
	}
}

func TestEngine_VerifyReportsEveryViolation(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := newProtector(t)
	seed(t, store, p, 6)
	ctx := context.Background()

	logs, _ := store.Query(ctx, &audit.Query{SortOrder: "asc"})
	for _, i := range []int{0, 3} {
		tampered := logs[i]
		tampered.Decision.Decision = decision.Allow
		tampered.ID = fmt.Sprintf("tampered-%d", i)
		if err := store.Store(ctx, tampered); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	engine := NewEngine(store, p, nil, nil)
	res, err := engine.Verify(ctx, &audit.Query{Start: day, End: day.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if res.Checked != 8 {
		t.Errorf("Checked = %d, want 8", res.Checked)
	}
	if res.Valid() || len(res.Violations) != 2 {
		t.Fatalf("Violations = %+v, want 2", res.Violations)
	}
	for _, v := range res.Violations {
		if v.Reason != audit.ViolationHashMismatch {
			t.Errorf("violation %s reason = %q", v.LogID, v.Reason)
		}
	}

	if _, err := engine.Verify(ctx, &audit.Query{}); !decision.IsValidationError(err) {
		t.Errorf("Verify() without range error = %v, want validation error", err)
	}
}
