package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "storefront-cart/model"
	"storefront-cart/store"
)

func item(id, name string, price int64) models.CartLineItem {
	return models.CartLineItem{
		ID:       id,
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Currency: "RWF",
		Category: "kitchen",
	}
}

func assertTotal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "total = %s, want %d", got, want)
}

func ids(items []models.CartLineItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// flakyKV fails writes on demand.
type flakyKV struct {
	*store.Memory
	failSet    bool
	failDelete bool
	failGet    bool
	failKey    string
	sets       int
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, error) {
	if f.failGet {
		return "", errors.New("backend down")
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.sets++
	if f.failSet || (f.failKey != "" && key == f.failKey) {
		return errors.New("backend down")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, keys ...string) error {
	if f.failDelete {
		return errors.New("backend down")
	}
	return f.Memory.Delete(ctx, keys...)
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	c := Load(ctx, kv)
	assert.True(t, c.IsEmpty())
	assertTotal(t, 0, c.Total())

	added, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)
	assert.True(t, added)
	assertTotal(t, 5000, c.Total())

	_, err = c.Add(ctx, item("p2", "Plate", 3000))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(c.Items()))
	assertTotal(t, 8000, c.Total())

	added, err = c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"p1", "p2"}, ids(c.Items()))
	assertTotal(t, 8000, c.Total())

	removed, err := c.Remove(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"p2"}, ids(c.Items()))
	assertTotal(t, 3000, c.Total())

	// restart
	c = Load(ctx, kv)
	assert.Equal(t, []string{"p2"}, ids(c.Items()))
	assertTotal(t, 3000, c.Total())

	require.NoError(t, c.Clear(ctx))
	assert.True(t, c.IsEmpty())
	assertTotal(t, 0, c.Total())
	_, err = kv.Get(ctx, DefaultItemsKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = kv.Get(ctx, DefaultTotalKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdd_IdempotentKeepsFirstEntry(t *testing.T) {
	ctx := context.Background()
	c := Load(ctx, store.NewMemory())

	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)

	// same id, different fields: existing entry is not updated
	added, err := c.Add(ctx, item("p1", "Big Mug", 9000))
	require.NoError(t, err)
	assert.False(t, added)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Mug", items[0].Name)
	assertTotal(t, 5000, c.Total())
}

func TestAdd_DuplicateDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	c := Load(ctx, kv)

	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)
	writes := kv.sets

	_, err = c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)
	assert.Equal(t, writes, kv.sets)
}

func TestAdd_RejectsInvalidItem(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	c := Load(ctx, kv)

	_, err := c.Add(ctx, item("", "No id", 10))
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = c.Add(ctx, item("p1", "Negative", -1))
	assert.ErrorIs(t, err, ErrInvalidItem)

	for _, price := range []string{"1e900000000", "1e-900000000"} {
		huge := item("p2", "Huge", 0)
		huge.Price = decimal.RequireFromString(price)
		_, err = c.Add(ctx, huge)
		assert.ErrorIs(t, err, ErrInvalidItem, price)
		assert.ErrorIs(t, err, ErrAmountOutOfRange, price)
	}

	assert.True(t, c.IsEmpty())
	assert.Zero(t, kv.sets)

	// zero price is allowed
	added, err := c.Add(ctx, item("free", "Sticker", 0))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"5000", true},
		{"19.99", true},
		{"1e18", true},
		{"0.000000000000000001", true},
		{"123456789012345678901234567890", true},
		{"-1", false},
		{"1e19", false},
		{"1e-19", false},
		{"1234567890123456789012345678901", false},
		{"1e900000000", false},
	}
	for _, tt := range tests {
		err := CheckAmount(decimal.RequireFromString(tt.in))
		if tt.ok {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, ErrAmountOutOfRange, tt.in)
		}
	}
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	c := Load(ctx, kv)
	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)
	writes := kv.sets

	removed, err := c.Remove(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []string{"p1"}, ids(c.Items()))
	assertTotal(t, 5000, c.Total())
	assert.Equal(t, writes, kv.sets)
}

func TestRemove_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	c := Load(ctx, store.NewMemory())
	for i := 1; i <= 4; i++ {
		_, err := c.Add(ctx, item(fmt.Sprintf("p%d", i), "x", int64(i)))
		require.NoError(t, err)
	}

	_, err := c.Remove(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3", "p4"}, ids(c.Items()))
	assertTotal(t, 8, c.Total())
}

func TestClear_FreshLoadIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := Load(ctx, kv)
	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, kv.Len(), "clear must erase keys, not write empty values")

	c = Load(ctx, kv)
	assert.True(t, c.IsEmpty())
	assertTotal(t, 0, c.Total())

	// clearing an empty cart is fine
	require.NoError(t, c.Clear(ctx))
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	c := Load(ctx, kv)
	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)

	kv.failSet = true
	_, err = c.Add(ctx, item("p2", "Plate", 3000))
	assert.ErrorIs(t, err, ErrPersist)
	_, err = c.Remove(ctx, "p1")
	assert.ErrorIs(t, err, ErrPersist)

	assert.Equal(t, []string{"p1"}, ids(c.Items()))
	assertTotal(t, 5000, c.Total())

	kv.failDelete = true
	assert.ErrorIs(t, c.Clear(ctx), ErrPersist)
	assert.Equal(t, 1, c.Len())
}

func TestTotalWriteFailureRestoresItems(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: store.NewMemory()}
	c := Load(ctx, kv)
	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)

	kv.failKey = DefaultTotalKey
	_, err = c.Add(ctx, item("p2", "Plate", 3000))
	require.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, []string{"p1"}, ids(c.Items()))

	kv.failKey = ""
	reloaded := Load(ctx, kv)
	assert.Equal(t, []string{"p1"}, ids(reloaded.Items()))
	assertTotal(t, 5000, reloaded.Total())
}

func TestLoad_MalformedStorage(t *testing.T) {
	cases := map[string]string{
		"garbage":        `{not json`,
		"object":         `{"id":"p1"}`,
		"missing id":     `[{"name":"Mug","price":1}]`,
		"duplicate id":   `[{"id":"p1","price":1},{"id":"p1","price":2}]`,
		"negative price": `[{"id":"p1","price":-5}]`,
		"bad price":      `[{"id":"p1","price":"abc"}]`,
		"no price":       `[{"id":"p1"}]`,
		"huge exponent":  `[{"id":"p0","price":1},{"id":"p1","price":"1e900000000"}]`,
		"tiny exponent":  `[{"id":"p1","price":1e-900000000}]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemory()
			require.NoError(t, kv.Set(ctx, DefaultItemsKey, raw))
			require.NoError(t, kv.Set(ctx, DefaultTotalKey, "999"))

			c := Load(ctx, kv)
			assert.True(t, c.IsEmpty())
			assertTotal(t, 0, c.Total())
		})
	}
}

func TestLoad_EmptyAndNull(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "[]"} {
		ctx := context.Background()
		kv := store.NewMemory()
		require.NoError(t, kv.Set(ctx, DefaultItemsKey, raw))
		c := Load(ctx, kv)
		assert.True(t, c.IsEmpty(), "raw %q", raw)
	}
}

func TestLoad_BackendErrorStartsEmpty(t *testing.T) {
	kv := &flakyKV{Memory: store.NewMemory(), failGet: true}
	c := Load(context.Background(), kv)
	assert.True(t, c.IsEmpty())
}

func TestLoad_RecomputesTotal(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, DefaultItemsKey, `[{"id":"p1","price":5000},{"id":"p2","price":"3000.50"}]`))
	require.NoError(t, kv.Set(ctx, DefaultTotalKey, "not a number"))

	c := Load(ctx, kv)
	assert.Equal(t, []string{"p1", "p2"}, ids(c.Items()))
	assert.True(t, c.Total().Equal(decimal.RequireFromString("8000.5")))
}

func TestWithKeys(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := Load(ctx, kv, WithKeys("a", "b"))
	_, err := c.Add(ctx, item("p1", "Mug", 5))
	require.NoError(t, err)

	total, err := kv.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "5", total)
	_, err = kv.Get(ctx, DefaultItemsKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	c := Load(ctx, store.NewMemory())
	_, err := c.Add(ctx, item("p1", "Mug", 5000))
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, "RWF", snap.Currency)

	_, err = c.Add(ctx, item("p2", "Plate", 3000))
	require.NoError(t, err)
	snap.Items[0].Name = "changed"

	assert.Len(t, snap.Items, 1)
	assert.True(t, snap.Total.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "Mug", c.Items()[0].Name)
}

// Random add/remove sequences: after every step the total equals the sum of
// the items, ids stay unique, and a reload reproduces the same state.
func TestRandomSequences(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		kv := store.NewMemory()
		c := Load(ctx, kv)

		for step := 0; step < 40; step++ {
			id := fmt.Sprintf("p%d", r.IntN(12))
			if r.IntN(3) == 0 {
				_, err := c.Remove(ctx, id)
				require.NoError(t, err)
			} else {
				price := decimal.New(r.Int64N(1_000_000), -2)
				_, err := c.Add(ctx, models.CartLineItem{
					ID:       id,
					Name:     "name-" + id,
					Price:    price,
					Currency: []string{"RWF", "USD", ""}[r.IntN(3)],
					Image:    []string{"", "https://cdn.example.com/" + id + ".png"}[r.IntN(2)],
					Category: []string{"", "kitchen", "décor"}[r.IntN(3)],
				})
				require.NoError(t, err)
			}

			items := c.Items()
			want := decimal.Zero
			seen := map[string]bool{}
			for _, it := range items {
				require.False(t, seen[it.ID], "duplicate id %s", it.ID)
				seen[it.ID] = true
				want = want.Add(it.Price)
			}
			require.True(t, c.Total().Equal(want), "round %d step %d: total %s want %s", round, step, c.Total(), want)
		}

		reloaded := Load(ctx, kv)
		want, got := c.Items(), reloaded.Items()
		require.Len(t, got, len(want))
		for i := range want {
			require.True(t, want[i].Price.Equal(got[i].Price), "round %d item %d price", round, i)
			// decimal values compare by Equal, everything else field by field
			want[i].Price, got[i].Price = decimal.Zero, decimal.Zero
			require.Equal(t, want[i], got[i], "round %d item %d", round, i)
		}
		require.True(t, c.Total().Equal(reloaded.Total()))
	}
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	c := Load(ctx, store.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every goroutine races on the same five ids
			_, _ = c.Add(ctx, item(fmt.Sprintf("p%d", i%5), "x", 10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
	assertTotal(t, 50, c.Total())
}
