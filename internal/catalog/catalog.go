// Package catalog groups books by shelf and layer for the shelf map and
// keeps that projection current as the store publishes snapshots.
package catalog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// LayerGroup is the ordered list of books on one layer of a shelf.
type LayerGroup struct {
	Layer model.Layer  `json:"layer"`
	Books []model.Book `json:"books"`
}

// ShelfGroup is one shelf's layers, lowest layer first, "Unknown" last.
type ShelfGroup struct {
	ShelfID string       `json:"shelf_id"`
	Layers  []LayerGroup `json:"layers"`
}

// GroupedView maps shelf -> layer -> books.
type GroupedView struct {
	Shelves []ShelfGroup `json:"shelves"`
}

// Shelf returns the group for shelfID, or false if no book sits there.
func (v GroupedView) Shelf(shelfID string) (ShelfGroup, bool) {
	for _, s := range v.Shelves {
		if s.ShelfID == shelfID {
			return s, true
		}
	}
	return ShelfGroup{}, false
}

// Predicate selects books for a filtered view.
type Predicate func(b *model.Book) bool

// Ingest groups all books. Within a layer books keep arrival order.
func Ingest(books []model.Book) GroupedView {
	return Filter(books, nil)
}

// Filter groups the books matching keep. A nil predicate keeps everything.
func Filter(books []model.Book, keep Predicate) GroupedView {
	type shelfBucket struct {
		layers map[model.Layer][]model.Book
	}
	buckets := make(map[string]*shelfBucket)

	for i := range books {
		b := books[i]
		if keep != nil && !keep(&b) {
			continue
		}
		shelf := b.Shelf()
		bucket, ok := buckets[shelf]
		if !ok {
			bucket = &shelfBucket{layers: make(map[model.Layer][]model.Book)}
			buckets[shelf] = bucket
		}
		bucket.layers[b.LayerNumber] = append(bucket.layers[b.LayerNumber], b)
	}

	shelfIDs := make([]string, 0, len(buckets))
	for id := range buckets {
		shelfIDs = append(shelfIDs, id)
	}
	SortShelfIDs(shelfIDs)

	view := GroupedView{Shelves: make([]ShelfGroup, 0, len(shelfIDs))}
	for _, id := range shelfIDs {
		bucket := buckets[id]
		layers := make([]model.Layer, 0, len(bucket.layers))
		for l := range bucket.layers {
			layers = append(layers, l)
		}
		sort.Slice(layers, func(i, j int) bool { return layerLess(layers[i], layers[j]) })

		group := ShelfGroup{ShelfID: id, Layers: make([]LayerGroup, 0, len(layers))}
		for _, l := range layers {
			group.Layers = append(group.Layers, LayerGroup{Layer: l, Books: bucket.layers[l]})
		}
		view.Shelves = append(view.Shelves, group)
	}
	return view
}

func layerLess(a, b model.Layer) bool {
	if a.Known() != b.Known() {
		return a.Known()
	}
	return a < b
}

// SortShelfIDs orders numeric shelf ids ascending, then the named shelves
// alphabetically, with "Unknown" last.
func SortShelfIDs(ids []string) {
	rank := func(id string) (int, int) {
		if id == model.UnknownShelf {
			return 2, 0
		}
		if n, err := strconv.Atoi(id); err == nil {
			return 0, n
		}
		return 1, 0
	}
	sort.SliceStable(ids, func(i, j int) bool {
		ri, ni := rank(ids[i])
		rj, nj := rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		if ri == 0 {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
}

// ShelfNumbers lists the distinct shelves that hold at least one book.
func ShelfNumbers(books []model.Book) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range books {
		id := books[i].Shelf()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	SortShelfIDs(ids)
	return ids
}

// MatchQuery returns a predicate for a case-insensitive substring match on
// title, author, or any category tag. A blank query matches nothing.
func MatchQuery(query string) Predicate {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return func(*model.Book) bool { return false }
	}
	return func(b *model.Book) bool {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) {
			return true
		}
		for _, tag := range b.Category {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
}
