package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	cols      []Collection
	items     map[string][]Item
	itemCalls int
	err       error
}

func (f *fakeLister) ListCollections(ctx context.Context) ([]Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]Collection(nil), f.cols...), nil
}

func (f *fakeLister) ListItems(ctx context.Context, collectionID string) ([]Item, error) {
	f.itemCalls++
	return append([]Item(nil), f.items[collectionID]...), nil
}

// newDays builds collections "day1".."dayN" with parts "part1".."partM" each.
func newDays(days, parts int) *fakeLister {
	f := &fakeLister{items: map[string][]Item{}}
	// reverse order on purpose: the cursor must sort
	for d := days; d >= 1; d-- {
		id := fmt.Sprintf("id-day%d", d)
		f.cols = append(f.cols, Collection{ID: id, Name: fmt.Sprintf("day%d", d)})
		for p := parts; p >= 1; p-- {
			f.items[id] = append(f.items[id], Item{
				ID:       fmt.Sprintf("day%d-part%d", d, p),
				Name:     fmt.Sprintf("part%d.mp4", p),
				MimeType: "video/mp4",
			})
		}
	}
	return f
}

func TestCursor_Advance_FullCycle(t *testing.T) {
	cursor := NewCursor(newDays(2, 2), nil, true)
	ctx := context.Background()

	sel, err := cursor.Advance(ctx, Position{Collection: "day1", Ordinal: 1})
	require.NoError(t, err)
	assert.Equal(t, "day1", sel.Collection.Name)
	assert.Equal(t, "day1-part1", sel.Item.ID)
	assert.Equal(t, 2, sel.Total)

	sel, err = cursor.Advance(ctx, sel.Next())
	require.NoError(t, err)
	assert.Equal(t, "day1", sel.Collection.Name)
	assert.Equal(t, 2, sel.Ordinal)
	assert.Equal(t, "day1-part2", sel.Item.ID)

	sel, err = cursor.Advance(ctx, sel.Next())
	require.NoError(t, err)
	assert.Equal(t, "day2", sel.Collection.Name)
	assert.Equal(t, 1, sel.Ordinal)
	assert.Equal(t, "day2-part1", sel.Item.ID)
	assert.Equal(t, []string{"day1"}, sel.Position.Completed)
	assert.False(t, sel.Reset)

	sel, err = cursor.Advance(ctx, sel.Next())
	require.NoError(t, err)
	assert.Equal(t, "day2-part2", sel.Item.ID)

	sel, err = cursor.Advance(ctx, sel.Next())
	require.NoError(t, err)
	assert.Equal(t, "day1", sel.Collection.Name)
	assert.Equal(t, 1, sel.Ordinal)
	assert.Equal(t, "day1-part1", sel.Item.ID)
	assert.True(t, sel.Reset)
	assert.Empty(t, sel.Position.Completed)
}

func TestCursor_Advance_NoWrap(t *testing.T) {
	cursor := NewCursor(newDays(2, 2), nil, false)

	_, err := cursor.Advance(context.Background(), Position{
		Collection: "day2",
		Ordinal:    3,
		Completed:  []string{"day1"},
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCursor_Advance_EmptyPosition(t *testing.T) {
	cursor := NewCursor(newDays(3, 1), nil, true)

	sel, err := cursor.Advance(context.Background(), Position{})
	require.NoError(t, err)
	assert.Equal(t, "day1", sel.Collection.Name)
	assert.Equal(t, 1, sel.Ordinal)
}

func TestCursor_Advance_MissingCollection(t *testing.T) {
	cursor := NewCursor(newDays(3, 2), nil, true)

	// "day1x" sorts between day1 and day2
	sel, err := cursor.Advance(context.Background(), Position{Collection: "day1x", Ordinal: 2})
	require.NoError(t, err)
	assert.Equal(t, "day2", sel.Collection.Name)
	assert.Equal(t, 1, sel.Ordinal)
}

func TestCursor_Advance_SkipsCompletedAndEmpty(t *testing.T) {
	f := newDays(4, 1)
	f.items["id-day2"] = nil
	cursor := NewCursor(f, nil, true)

	sel, err := cursor.Advance(context.Background(), Position{
		Collection: "day1",
		Ordinal:    2,
		Completed:  []string{"day3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "day4", sel.Collection.Name)
	assert.Equal(t, []string{"day1", "day2", "day3"}, sel.Position.Completed)
}

func TestCursor_Advance_AllCollectionsEmpty(t *testing.T) {
	f := &fakeLister{
		cols:  []Collection{{ID: "a", Name: "day1"}, {ID: "b", Name: "day2"}, {ID: "c", Name: "day3"}},
		items: map[string][]Item{},
	}
	cursor := NewCursor(f, nil, true)

	_, err := cursor.Advance(context.Background(), Position{Collection: "day1", Ordinal: 1})
	require.ErrorIs(t, err, ErrNotFound)
	// every collection listed once, the walk does not loop forever
	assert.Equal(t, 3, f.itemCalls)
}

func TestCursor_Advance_NoCollections(t *testing.T) {
	cursor := NewCursor(&fakeLister{}, nil, true)

	_, err := cursor.Advance(context.Background(), Position{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCursor_Advance_ListError(t *testing.T) {
	boom := errors.New("boom")
	cursor := NewCursor(&fakeLister{err: boom}, nil, true)

	_, err := cursor.Advance(context.Background(), Position{})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCursor_Advance_DegradedFallback(t *testing.T) {
	f := &fakeLister{
		cols: []Collection{{ID: "d1", Name: "day1"}},
		items: map[string][]Item{"d1": {
			{ID: "x", Name: "intro.mp4"},
			{ID: "y", Name: "finale.mp4"},
		}},
	}
	cursor := NewCursor(f, nil, true)

	sel, err := cursor.Advance(context.Background(), Position{Collection: "day1", Ordinal: 2})
	require.NoError(t, err)
	assert.True(t, sel.Degraded)
	assert.Equal(t, "y", sel.Item.ID, "fallback is the first item by name")
	assert.Equal(t, 2, sel.Ordinal)
}

func TestCursor_Advance_IgnoresNonVideo(t *testing.T) {
	f := &fakeLister{
		cols: []Collection{{ID: "d1", Name: "day1"}, {ID: "d2", Name: "day2"}},
		items: map[string][]Item{
			"d1": {
				{ID: "n", Name: "notes.txt", MimeType: "text/plain"},
				{ID: "p1", Name: "part1.mov"},
			},
			"d2": {{ID: "q1", Name: "part1.mp4", MimeType: "video/mp4"}},
		},
	}
	cursor := NewCursor(f, nil, true)

	sel, err := cursor.Advance(context.Background(), Position{Collection: "day1", Ordinal: 2})
	require.NoError(t, err)
	assert.Equal(t, "q1", sel.Item.ID)
}

func TestCursor_Exact(t *testing.T) {
	cursor := NewCursor(newDays(2, 3), nil, true)
	ctx := context.Background()

	sel, err := cursor.Exact(ctx, Position{Collection: "day2", Ordinal: 3})
	require.NoError(t, err)
	assert.Equal(t, "day2-part3", sel.Item.ID)

	_, err = cursor.Exact(ctx, Position{Collection: "day2", Ordinal: 4})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = cursor.Exact(ctx, Position{Collection: "day9", Ordinal: 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSelection_Next(t *testing.T) {
	sel := &Selection{Position: Position{Collection: "day1", Ordinal: 4, Completed: []string{"day0"}}}

	next := sel.Next()
	assert.Equal(t, Position{Collection: "day1", Ordinal: 5, Completed: []string{"day0"}}, next)

	next.Completed[0] = "changed"
	assert.Equal(t, "day0", sel.Position.Completed[0])
}
