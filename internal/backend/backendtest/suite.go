// Package backendtest is the conformance suite every storage backend runs,
// so that all implementations agree on error kinds, search semantics and
// lazy retrieval.
package backendtest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/model/modeltest"
)

// Factory opens an empty backend. Reopen, when non-nil, opens a second
// handle on the same persisted data to check durability.
type Factory struct {
	Open   func(t *testing.T) backend.Backend
	Reopen func(t *testing.T, b backend.Backend) backend.Backend
}

// Run executes the suite.
func Run(t *testing.T, f Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, f) })
	t.Run("SaveExisting", func(t *testing.T) { testSaveExisting(t, f) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, f) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, f) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, f) })
	t.Run("DeleteMismatch", func(t *testing.T) { testDeleteMismatch(t, f) })
	t.Run("NonFiniteFloats", func(t *testing.T) { testNonFiniteFloats(t, f) })
	t.Run("DuplicateIDsInSubtree", func(t *testing.T) { testDuplicateIDsInSubtree(t, f) })
	t.Run("Search", func(t *testing.T) { testSearch(t, f) })
	t.Run("SearchBadOperator", func(t *testing.T) { testSearchBadOperator(t, f) })
	t.Run("Lazy", func(t *testing.T) { testLazy(t, f) })
	t.Run("ConcurrentSave", func(t *testing.T) { testConcurrentSave(t, f) })
	if f.Reopen != nil {
		t.Run("Durable", func(t *testing.T) { testDurable(t, f) })
	}
}

func seed(t *testing.T, b backend.Backend) (*model.Collection, *model.Snapshot) {
	t.Helper()
	coll, snap := modeltest.Linac()
	ctx := context.Background()
	require.NoError(t, b.Save(ctx, coll))
	require.NoError(t, b.Save(ctx, snap))
	return coll, snap
}

func testRoundTrip(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	root := modeltest.SampleDatabase()
	for _, e := range root.Entries {
		require.NoError(t, b.Save(ctx, e))
	}
	pwr := modeltest.ParameterWithReadback()
	require.NoError(t, b.Save(ctx, pwr))

	for _, e := range append(root.Entries, pwr) {
		got, err := b.Get(ctx, e.EntryID())
		require.NoError(t, err)
		assert.True(t, model.Equal(e, got), "%s %s changed in storage", e.Kind(), e.EntryID())
	}

	// nested entries are addressable too
	nested := root.Entries[2].(*model.Collection).Children[1]
	got, err := b.Get(ctx, nested.EntryID())
	require.NoError(t, err)
	assert.True(t, model.Equal(nested, got))

	r, err := b.Root(ctx)
	require.NoError(t, err)
	require.Len(t, r.Entries, len(root.Entries)+1)
	for i, e := range root.Entries {
		assert.Equal(t, e.EntryID(), r.Entries[i].EntryID(), "root order")
	}
}

func testSaveExisting(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, _ := seed(t, b)

	err := b.Save(ctx, coll)
	require.ErrorIs(t, err, backend.ErrEntryAlreadyExists)

	// a nested id counts as present
	child := coll.Children[0]
	err = b.Save(ctx, child)
	require.ErrorIs(t, err, backend.ErrEntryAlreadyExists)
}

func testGetMissing(t *testing.T, f Factory) {
	b := f.Open(t)
	seed(t, b)
	_, err := b.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, backend.ErrEntryNotFound)
}

func testUpdate(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, _ := seed(t, b)

	// BSY is shared by LCLS-NC and LCLS-SC: both occurrences change
	bsy := model.Clone(coll.Children[0].(*model.Collection).Children[2]).(*model.Collection)
	bsy.Title = "BSY (renamed)"
	require.NoError(t, b.Update(ctx, bsy))

	got, err := b.Get(ctx, coll.EntryID())
	require.NoError(t, err)
	all := got.(*model.Collection)
	assert.Equal(t, "BSY (renamed)", all.Children[0].(*model.Collection).Children[2].(*model.Collection).Title)
	assert.Equal(t, "BSY (renamed)", all.Children[1].(*model.Collection).Children[1].(*model.Collection).Title)

	err = b.Update(ctx, model.NewCollection("ghost", ""))
	require.ErrorIs(t, err, backend.ErrEntryNotFound)
}

func testDelete(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, snap := seed(t, b)

	bsy := coll.Children[0].(*model.Collection).Children[2]
	require.NoError(t, b.Delete(ctx, bsy))

	_, err := b.Get(ctx, bsy.EntryID())
	require.ErrorIs(t, err, backend.ErrEntryNotFound)

	got, err := b.Get(ctx, coll.EntryID())
	require.NoError(t, err)
	all := got.(*model.Collection)
	assert.Len(t, all.Children[0].(*model.Collection).Children, 2)
	assert.Len(t, all.Children[1].(*model.Collection).Children, 1)

	require.NoError(t, b.Delete(ctx, snap))
	r, err := b.Root(ctx)
	require.NoError(t, err)
	require.Len(t, r.Entries, 1)

	err = b.Delete(ctx, snap)
	require.ErrorIs(t, err, backend.ErrEntryNotFound)
}

func testDeleteMismatch(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, _ := seed(t, b)

	altered := model.Clone(coll).(*model.Collection)
	altered.Description = "not what is stored"
	err := b.Delete(ctx, altered)
	require.ErrorIs(t, err, backend.ErrBackend)

	got, err := b.Get(ctx, coll.EntryID())
	require.NoError(t, err)
	assert.True(t, model.Equal(coll, got), "stored entry must be unchanged")
}

func testNonFiniteFloats(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)

	snap := model.NewSnapshot("invalid readings", "",
		&model.Setpoint{Meta: model.NewMeta(""), Address: "MTR:1", Data: model.Float(math.NaN())},
		&model.Setpoint{Meta: model.NewMeta(""), Address: "MTR:2", Data: model.Float(math.Inf(1))},
		&model.Readback{Meta: model.NewMeta(""), Address: "MTR:3", Data: model.Float(math.Inf(-1))},
		&model.Readback{Meta: model.NewMeta(""), Address: "WF:1", Data: model.Floats([]float64{1, math.NaN(), math.Inf(1)})},
	)
	require.NoError(t, b.Save(ctx, snap))

	got, err := b.Get(ctx, snap.EntryID())
	require.NoError(t, err)
	assert.True(t, model.Equal(snap, got), "non-finite readings changed in storage")

	require.NoError(t, b.Delete(ctx, got))
	_, err = b.Get(ctx, snap.EntryID())
	require.ErrorIs(t, err, backend.ErrEntryNotFound)
}

func testDuplicateIDsInSubtree(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)

	a := model.NewParameter("MTR:A", "")
	other := model.NewParameter("MTR:B", "")
	other.ID = a.ID
	err := b.Save(ctx, model.NewCollection("clash", "", a, other))
	require.ErrorIs(t, err, backend.ErrEntryAlreadyExists)

	r, err := b.Root(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Entries, "rejected save must not be stored")

	// an identical entry reachable twice is one entry
	shared := model.NewParameter("MTR:RBV", "")
	p1 := model.NewParameter("MTR:1", "")
	p1.Readback = shared
	p2 := model.NewParameter("MTR:2", "")
	p2.Readback = model.Clone(shared).(*model.Parameter)
	coll := model.NewCollection("shared", "", p1, p2)
	require.NoError(t, b.Save(ctx, coll))

	// updates may not introduce a clash either
	bad := model.Clone(coll).(*model.Collection)
	bad.Children[1].(*model.Parameter).Readback.Address = "MTR:OTHER"
	err = b.Update(ctx, bad)
	require.ErrorIs(t, err, backend.ErrEntryAlreadyExists)

	got, err := b.Get(ctx, coll.EntryID())
	require.NoError(t, err)
	assert.True(t, model.Equal(coll, got), "stored entry must be unchanged")
}

func ids(t *testing.T, b backend.Backend, terms ...backend.SearchTerm) map[uuid.UUID]bool {
	t.Helper()
	found, err := backend.Collect(context.Background(), b, terms...)
	require.NoError(t, err)
	out := make(map[uuid.UUID]bool, len(found))
	for _, e := range found {
		assert.False(t, out[e.EntryID()], "search yielded %s twice", e.EntryID())
		out[e.EntryID()] = true
	}
	return out
}

func testSearch(t *testing.T, f Factory) {
	b := f.Open(t)
	seed(t, b)

	// eq on a string attribute
	got := ids(t, b, backend.Term(model.AttrAddress, backend.OpEq, "VAC:BSY:TEST0"))
	assert.Equal(t, map[uuid.UUID]bool{
		uuid.MustParse("030786df-153b-4d29-bc1f-66deeb116724"): true,
		uuid.MustParse("6bebcb59-884f-4e68-927d-f3053effd698"): true,
	}, got)

	// conjunction with entry_type
	got = ids(t, b,
		backend.Term(model.AttrAddress, backend.OpEq, "VAC:BSY:TEST0"),
		backend.Term(model.AttrEntryType, backend.OpEq, model.KindSetpoint),
	)
	assert.Equal(t, map[uuid.UUID]bool{uuid.MustParse("6bebcb59-884f-4e68-927d-f3053effd698"): true}, got)

	// lt / gt are inclusive
	got = ids(t, b,
		backend.Term(model.AttrEntryType, backend.OpEq, model.KindSetpoint),
		backend.Term(model.AttrData, backend.OpLt, 0),
	)
	assert.Equal(t, map[uuid.UUID]bool{
		uuid.MustParse("2ef43192-40c9-4e79-96e7-2d7f6df58cd9"): true, // -10
		uuid.MustParse("4d2f7bf2-af71-492b-8528-ba9b6e3ab964"): true, // 0
	}, got)
	got = ids(t, b, backend.Term(model.AttrData, backend.OpGt, 5))
	assert.Equal(t, map[uuid.UUID]bool{uuid.MustParse("4bffe9a5-f198-41d8-90ab-870d1b5a325b"): true}, got)

	// in
	got = ids(t, b, backend.Term(model.AttrTitle, backend.OpIn, []string{"IN20", "L0B"}))
	assert.Len(t, got, 4) // two collections, two snapshots

	// like: regex on strings, UUIDs as strings
	got = ids(t, b,
		backend.Term(model.AttrEntryType, backend.OpEq, model.KindParameter),
		backend.Term(model.AttrAddress, backend.OpLike, "^VAC:"),
	)
	assert.Len(t, got, 3)
	got = ids(t, b, backend.Term(model.AttrUUID, backend.OpLike, "^441ff79f"))
	assert.Equal(t, map[uuid.UUID]bool{uuid.MustParse("441ff79f-4948-480e-9646-55a1462a5a70"): true}, got)

	// creation_time range
	got = ids(t, b, backend.Term(model.AttrCreationTime, backend.OpGt, time.Now().Add(time.Hour)))
	assert.Empty(t, got)

	// early stop and restart
	seq, err := b.Search(context.Background(), backend.Term(model.AttrEntryType, backend.OpEq, model.KindCollection))
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	total := 0
	for range seq {
		total++
	}
	assert.Equal(t, 11, total)
}

func testSearchBadOperator(t *testing.T, f Factory) {
	b := f.Open(t)
	_, err := b.Search(context.Background(), backend.Term(model.AttrTitle, "ne", "x"))
	require.ErrorIs(t, err, backend.ErrConfiguration)
}

func testLazy(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, _ := seed(t, b)

	l := backend.Lazy(b, coll.EntryID())
	assert.Equal(t, coll.EntryID(), l.ID())
	assert.False(t, l.Resolved())

	e, err := l.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, l.Resolved())
	assert.True(t, model.Equal(coll, e))

	// resolved once: later storage changes are not observed
	require.NoError(t, b.Delete(ctx, coll))
	again, err := l.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, model.Equal(coll, again))

	// a vanished record fails like an eager fetch
	_, err = backend.Lazy(b, coll.EntryID()).Resolve(ctx)
	require.ErrorIs(t, err, backend.ErrEntryNotFound)
}

func testConcurrentSave(t *testing.T, f Factory) {
	b := f.Open(t)
	p := model.NewParameter("RACE:PV", "saved concurrently")

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Save(context.Background(), p)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, backend.ErrEntryAlreadyExists), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
}

func testDurable(t *testing.T, f Factory) {
	ctx := context.Background()
	b := f.Open(t)
	coll, snap := seed(t, b)
	require.NoError(t, b.Delete(ctx, coll.Children[1]))

	b2 := f.Reopen(t, b)
	got, err := b2.Get(ctx, snap.EntryID())
	require.NoError(t, err)
	assert.True(t, model.Equal(snap, got))

	_, err = b2.Get(ctx, coll.Children[1].EntryID())
	require.ErrorIs(t, err, backend.ErrEntryNotFound)

	r, err := b2.Root(ctx)
	require.NoError(t, err)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, coll.EntryID(), r.Entries[0].EntryID())
}
