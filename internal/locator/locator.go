// Package locator resolves a search term to the book to highlight on the
// shelf map.
package locator

import (
	"github.com/Shivanand-hulikatti/library-availability/internal/catalog"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// Locate returns the first book in store order whose title, author or a
// category tag contains query, case-insensitively. The first match wins;
// there is no ranking. A blank query or no match returns false, which the
// caller treats as "clear the highlight".
func Locate(query string, books []model.Book) (model.Highlight, bool) {
	match := catalog.MatchQuery(query)
	for i := range books {
		if match(&books[i]) {
			return model.Highlight{
				ShelfID: books[i].Shelf(),
				Layer:   books[i].LayerNumber,
				BookID:  books[i].ID,
			}, true
		}
	}
	return model.Highlight{}, false
}
