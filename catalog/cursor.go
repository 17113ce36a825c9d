package catalog

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound means no item could be located in the catalog.
	ErrNotFound = errors.New("no content available")
	// ErrExhausted means every collection was processed and wrapping is disabled.
	ErrExhausted = errors.Wrap(ErrNotFound, "catalog exhausted")
)

// Position 持久化的游标位置：集合名 + 集合内序号（从 1 开始）
type Position struct {
	Collection string   `json:"collection"`
	Ordinal    int      `json:"ordinal"`
	Completed  []string `json:"completed,omitempty"`
}

// Selection 本次尝试选中的条目
type Selection struct {
	Collection Collection `json:"collection"`
	Item       Item       `json:"item"`
	Ordinal    int        `json:"ordinal"`
	Total      int        `json:"total"`
	// Degraded is set when no item carried the requested ordinal and the
	// first item of the collection was used instead.
	Degraded bool `json:"degraded,omitempty"`
	// Reset is set when every collection had been processed and the cursor
	// started a new cycle from the first collection.
	Reset bool `json:"reset,omitempty"`
	// Position is the resolved position, with Completed reflecting any
	// collections exhausted while resolving.
	Position Position `json:"position"`
}

// Next 返回选中条目之后的下一个位置
func (s *Selection) Next() Position {
	return Position{
		Collection: s.Position.Collection,
		Ordinal:    s.Position.Ordinal + 1,
		Completed:  append([]string(nil), s.Position.Completed...),
	}
}

// Cursor 将持久化的位置映射到当前的远端目录
type Cursor struct {
	lister Lister
	parser *OrdinalParser
	wrap   bool
}

// NewCursor 创建游标。wrap=false 时走完一轮返回 ErrExhausted，不再从头开始
func NewCursor(lister Lister, parser *OrdinalParser, wrap bool) *Cursor {
	if parser == nil {
		parser = NewOrdinalParser(DefaultMarker)
	}
	return &Cursor{lister: lister, parser: parser, wrap: wrap}
}

// Advance 返回 pos 处的条目，跳过不存在或已处理完的合集。
// 遍历次数有上限，全部为空时返回 ErrNotFound。
func (c *Cursor) Advance(ctx context.Context, pos Position) (*Selection, error) {
	cols, err := c.collections(ctx)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(pos.Completed))
	for _, name := range pos.Completed {
		completed[name] = true
	}

	name := pos.Collection
	ordinal := pos.Ordinal
	if ordinal < 1 {
		ordinal = 1
	}
	reset := false
	itemsCache := make(map[string][]Item)

	limit := 2*len(cols) + 1
	for step := 0; step < limit; step++ {
		if col, ok := findCollection(cols, name); ok {
			items, ok := itemsCache[col.ID]
			if !ok {
				items, err = c.items(ctx, col)
				if err != nil {
					return nil, err
				}
				itemsCache[col.ID] = items
			}

			if ordinal <= len(items) {
				sel := c.selection(col, items, ordinal, completed)
				sel.Reset = reset
				return sel, nil
			}

			logrus.Infof("collection %s exhausted at part %d (%d items)", col.Name, ordinal, len(items))
			completed[col.Name] = true
		} else if name != "" {
			logrus.Warnf("collection %s not found in catalog, moving on", name)
		}

		next, found := nextIncomplete(cols, name, completed)
		if !found {
			if !c.wrap {
				return nil, ErrExhausted
			}
			logrus.Info("all collections processed, starting a new cycle")
			completed = make(map[string]bool)
			reset = true
			next = cols[0].Name
		}
		name, ordinal = next, 1
	}

	return nil, errors.Wrap(ErrNotFound, "every collection is empty")
}

// Exact 返回 pos 处的条目，不会跳到其他合集（用于强制运行）
func (c *Cursor) Exact(ctx context.Context, pos Position) (*Selection, error) {
	cols, err := c.collections(ctx)
	if err != nil {
		return nil, err
	}
	col, ok := findCollection(cols, pos.Collection)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "collection %q", pos.Collection)
	}
	items, err := c.items(ctx, col)
	if err != nil {
		return nil, err
	}
	if pos.Ordinal < 1 || pos.Ordinal > len(items) {
		return nil, errors.Wrapf(ErrNotFound, "part %d of %q (%d items)", pos.Ordinal, col.Name, len(items))
	}

	completed := make(map[string]bool, len(pos.Completed))
	for _, name := range pos.Completed {
		completed[name] = true
	}
	return c.selection(col, items, pos.Ordinal, completed), nil
}

func (c *Cursor) collections(ctx context.Context) ([]Collection, error) {
	cols, err := c.lister.ListCollections(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list collections")
	}
	if len(cols) == 0 {
		return nil, errors.Wrap(ErrNotFound, "catalog has no collections")
	}
	SortCollections(cols)
	return cols, nil
}

func (c *Cursor) items(ctx context.Context, col Collection) ([]Item, error) {
	items, err := c.lister.ListItems(ctx, col.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of %s", col.Name)
	}
	items = FilterVideos(items)
	SortItems(items)
	return items, nil
}

func (c *Cursor) selection(col Collection, items []Item, ordinal int, completed map[string]bool) *Selection {
	idx, degraded := c.parser.Pick(items, ordinal)
	if degraded {
		logrus.Warnf("no item in %s carries part %d, falling back to first item %s",
			col.Name, ordinal, items[idx].Name)
	}

	done := make([]string, 0, len(completed))
	for name := range completed {
		done = append(done, name)
	}
	sort.Strings(done)

	return &Selection{
		Collection: col,
		Item:       items[idx],
		Ordinal:    ordinal,
		Total:      len(items),
		Degraded:   degraded,
		Position: Position{
			Collection: col.Name,
			Ordinal:    ordinal,
			Completed:  done,
		},
	}
}

func findCollection(cols []Collection, name string) (Collection, bool) {
	if name == "" {
		return Collection{}, false
	}
	for _, col := range cols {
		if col.Name == name {
			return col, true
		}
	}
	return Collection{}, false
}

// nextIncomplete looks for the first incomplete collection sorting after
// name, then wraps to the start of the list.
func nextIncomplete(cols []Collection, name string, completed map[string]bool) (string, bool) {
	for _, col := range cols {
		if col.Name > name && !completed[col.Name] {
			return col.Name, true
		}
	}
	for _, col := range cols {
		if col.Name <= name && col.Name != name && !completed[col.Name] {
			return col.Name, true
		}
	}
	return "", false
}
