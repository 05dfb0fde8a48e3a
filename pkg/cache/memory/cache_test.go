package memory

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/fishlens/fishlens/pkg/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, capacity int, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(capacity, opts...), clk
}

func key(fp models.Fingerprint, kind models.AnalysisKind) models.CacheKey {
	return models.CacheKey{Fingerprint: fp, Kind: kind}
}

func entry(note string) models.CacheEntry {
	r := models.EmptyResult(models.KindFreshness)
	r.Notes = []string{note}
	return models.CacheEntry{
		Result:     r,
		Confidence: models.ConfidenceScore{Percentage: 90, Components: map[string]int{models.FactorBase: 100}},
	}
}

// flip returns fp with the given bit positions inverted.
func flip(fp models.Fingerprint, bits ...int) models.Fingerprint {
	for _, b := range bits {
		fp[b/64] ^= 1 << (63 - uint(b%64))
	}
	return fp
}

func TestPutAndGetExact(t *testing.T) {
	c, _ := newTestCache(t, 10)
	k := key(models.Fingerprint{1, 2}, models.KindFreshness)

	if _, evicted := c.Put(k, entry("a")); evicted {
		t.Error("unexpected eviction")
	}

	e, ok := c.GetExact(k)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if e.HitCount != 2 {
		t.Errorf("expected hit count 2, got %d", e.HitCount)
	}
	if e.Fingerprint != k.Fingerprint || e.Kind != k.Kind {
		t.Errorf("entry key not filled in: %+v", e.Key())
	}

	// Same fingerprint, different kind is a separate entry.
	if _, ok := c.GetExact(key(k.Fingerprint, models.KindSpecies)); ok {
		t.Error("expected miss for different kind")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestGetExactReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, 10)
	k := key(models.Fingerprint{7, 7}, models.KindFreshness)
	c.Put(k, entry("original"))

	e, _ := c.GetExact(k)
	e.Result.Notes[0] = "changed"
	e.Confidence.Components[models.FactorBase] = 0

	again, _ := c.GetExact(k)
	if again.Result.Notes[0] != "original" {
		t.Errorf("cache entry was mutated through a copy: %q", again.Result.Notes[0])
	}
	if again.Confidence.Components[models.FactorBase] != 100 {
		t.Error("confidence components were mutated through a copy")
	}
}

func TestPutOverwrite(t *testing.T) {
	c, _ := newTestCache(t, 2)
	k := key(models.Fingerprint{1, 1}, models.KindBoth)
	c.Put(k, entry("first"))
	c.Put(key(models.Fingerprint{2, 2}, models.KindBoth), entry("other"))

	if _, evicted := c.Put(k, entry("second")); evicted {
		t.Error("overwrite should not evict")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
	e, _ := c.GetExact(k)
	if e.Result.Notes[0] != "second" {
		t.Errorf("expected overwritten entry, got %q", e.Result.Notes[0])
	}
}

func TestEvictsLeastFrequentlyUsed(t *testing.T) {
	c, clk := newTestCache(t, 3)
	a := key(models.Fingerprint{1, 0}, models.KindFreshness)
	b := key(models.Fingerprint{2, 0}, models.KindFreshness)
	d := key(models.Fingerprint{3, 0}, models.KindFreshness)

	c.Put(a, entry("a"))
	clk.Advance(time.Second)
	c.Put(b, entry("b"))
	clk.Advance(time.Second)
	c.Put(d, entry("d"))

	c.GetExact(a)
	c.GetExact(d)

	victim, evicted := c.Put(key(models.Fingerprint{4, 0}, models.KindFreshness), entry("e"))
	if !evicted || victim != b {
		t.Errorf("expected b evicted, got %v (evicted=%v)", victim, evicted)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestEvictionTieBreaksOnAge(t *testing.T) {
	c, clk := newTestCache(t, 2)
	older := key(models.Fingerprint{1, 0}, models.KindSpecies)
	newer := key(models.Fingerprint{2, 0}, models.KindSpecies)

	c.Put(older, entry("older"))
	clk.Advance(time.Minute)
	c.Put(newer, entry("newer"))

	victim, _ := c.Put(key(models.Fingerprint{3, 0}, models.KindSpecies), entry("x"))
	if victim != older {
		t.Errorf("expected oldest entry evicted, got %v", victim)
	}
}

func TestCapacityAndEvictionInvariants(t *testing.T) {
	const capacity = 16
	c, clk := newTestCache(t, capacity)
	rng := rand.New(rand.NewSource(7))

	var keys []models.CacheKey
	for i := 0; i < 500; i++ {
		clk.Advance(time.Duration(rng.Intn(3)) * time.Second)
		switch rng.Intn(3) {
		case 0:
			if len(keys) > 0 {
				c.GetExact(keys[rng.Intn(len(keys))])
			}
		default:
			k := key(models.Fingerprint{uint64(rng.Intn(40)), 0}, models.AllKinds[rng.Intn(3)])
			keys = append(keys, k)

			before := c.Entries()
			exists := false
			for _, e := range before {
				if e.Key() == k {
					exists = true
				}
			}
			victim, evicted := c.Put(k, entry("x"))
			if evicted {
				if exists {
					t.Fatal("overwrite evicted an entry")
				}
				var min *models.CacheEntry
				for j := range before {
					if min == nil || evictsBefore(&before[j], min) {
						min = &before[j]
					}
				}
				if min.Key() != victim {
					t.Fatalf("evicted %v, expected %v", victim, min.Key())
				}
			}
		}
		if n := c.Len(); n > capacity {
			t.Fatalf("cache holds %d entries, capacity %d", n, capacity)
		}
	}
}

func TestTTLExpiration(t *testing.T) {
	c, clk := newTestCache(t, 10, WithTTL(time.Hour))
	k := key(models.Fingerprint{9, 9}, models.KindFreshness)
	c.Put(k, entry("x"))

	clk.Advance(30 * time.Minute)
	if _, ok := c.GetExact(k); !ok {
		t.Fatal("expected hit before TTL")
	}

	clk.Advance(31 * time.Minute)
	if _, ok := c.GetExact(k); ok {
		t.Error("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed, got %d entries", c.Len())
	}
	if c.Stats().Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", c.Stats().Expirations)
	}
}

func TestTTLAppliesToFindSimilar(t *testing.T) {
	c, clk := newTestCache(t, 10, WithTTL(time.Minute))
	fp := models.Fingerprint{0xFF, 0xFF}
	c.Put(key(fp, models.KindFreshness), entry("x"))

	clk.Advance(2 * time.Minute)
	if got := c.FindSimilar(flip(fp, 3), models.KindFreshness, 5); len(got) != 0 {
		t.Errorf("expected no matches after TTL, got %d", len(got))
	}
	if c.Len() != 0 {
		t.Error("expected expired entry removed by similarity search")
	}
}

func TestFindSimilarOrdering(t *testing.T) {
	c, clk := newTestCache(t, 10)
	base := models.Fingerprint{0x0123456789ABCDEF, 0xFEDCBA9876543210}

	far := flip(base, 0, 1, 2, 3, 4, 5)
	near := flip(base, 100)
	tieOld := flip(base, 10, 70)
	tieNew := flip(base, 20, 90)
	tooFar := flip(base, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)

	for _, fp := range []models.Fingerprint{far, tieOld, near, tieNew, tooFar} {
		c.Put(key(fp, models.KindFreshness), entry("x"))
		clk.Advance(time.Second)
	}
	c.Put(key(near, models.KindSpecies), entry("other kind"))

	got := c.FindSimilar(base, models.KindFreshness, 10)
	want := []models.Fingerprint{near, tieOld, tieNew, far}
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(got))
	}
	for i, m := range got {
		if m.Entry.Fingerprint != want[i] {
			t.Errorf("match %d: expected %s, got %s", i, want[i], m.Entry.Fingerprint)
		}
		if m.Distance != base.Distance(want[i]) {
			t.Errorf("match %d: expected distance %d, got %d", i, base.Distance(want[i]), m.Distance)
		}
		if m.Entry.HitCount != 2 {
			t.Errorf("match %d: expected hit count 2, got %d", i, m.Entry.HitCount)
		}
	}
}

func TestFindSimilarIndexMatchesLinearScan(t *testing.T) {
	c, _ := newTestCache(t, 1000)
	rng := rand.New(rand.NewSource(99))
	base := models.Fingerprint{rng.Uint64(), rng.Uint64()}

	var fps []models.Fingerprint
	for i := 0; i < 300; i++ {
		var fp models.Fingerprint
		if i%2 == 0 {
			fp = models.Fingerprint{rng.Uint64(), rng.Uint64()}
		} else {
			bits := rng.Perm(models.FingerprintBits)[:rng.Intn(24)]
			fp = flip(base, bits...)
		}
		fps = append(fps, fp)
		c.Put(key(fp, models.KindBoth), entry("x"))
	}

	for _, maxDistance := range []int{0, 3, 10, 15, 16, 23} {
		want := make(map[models.Fingerprint]bool)
		for _, fp := range fps {
			if base.Distance(fp) <= maxDistance {
				want[fp] = true
			}
		}
		got := c.FindSimilar(base, models.KindBoth, maxDistance)
		if len(got) != len(want) {
			t.Errorf("distance %d: expected %d matches, got %d", maxDistance, len(want), len(got))
			continue
		}
		for _, m := range got {
			if !want[m.Entry.Fingerprint] {
				t.Errorf("distance %d: unexpected match %s", maxDistance, m.Entry.Fingerprint)
			}
		}
	}
}

func TestDeleteClearEntries(t *testing.T) {
	c, clk := newTestCache(t, 10)
	a := key(models.Fingerprint{1, 0}, models.KindSpecies)
	b := key(models.Fingerprint{2, 0}, models.KindSpecies)
	c.Put(a, entry("a"))
	clk.Advance(time.Second)
	c.Put(b, entry("b"))

	entries := c.Entries()
	if len(entries) != 2 || entries[0].Key() != a {
		t.Fatalf("expected oldest-first entries, got %+v", entries)
	}

	if !c.Delete(a) {
		t.Error("expected delete to report removal")
	}
	if c.Delete(a) {
		t.Error("second delete should report nothing removed")
	}
	if got := c.FindSimilar(a.Fingerprint, models.KindSpecies, 0); len(got) != 0 {
		t.Error("deleted entry still indexed")
	}

	if n := c.Clear(); n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestDefaultCapacity(t *testing.T) {
	if c := New(0); c.Capacity() != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, c.Capacity())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(32)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(g)))
			for i := 0; i < 500; i++ {
				fp := models.Fingerprint{uint64(rng.Intn(64)), uint64(g)}
				k := key(fp, models.KindFreshness)
				switch i % 4 {
				case 0:
					c.Put(k, entry("x"))
				case 1:
					c.GetExact(k)
				case 2:
					c.FindSimilar(fp, models.KindFreshness, 8)
				default:
					c.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	if n := c.Len(); n > 32 {
		t.Errorf("cache holds %d entries, capacity 32", n)
	}
}
