package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

// catalogFile is the on-disk layout of a catalog seed file:
//
//	books:
//	  - id: b1
//	    title: Dune
//	    author: Frank Herbert
//	    shelf: "3"
//	    layer: 2
//	    total_copies: 3
//	    copies_available: 3
//	    category: [Science Fiction]
type catalogFile struct {
	Books []catalogEntry `yaml:"books"`
}

// Counts and layers are decoded loosely; seed files are often hand-edited.
type catalogEntry struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Author          string   `yaml:"author"`
	Shelf           string   `yaml:"shelf"`
	Layer           any      `yaml:"layer"`
	TotalCopies     any      `yaml:"total_copies"`
	CopiesAvailable any      `yaml:"copies_available"`
	Category        []string `yaml:"category"`
	Department      []string `yaml:"department"`
	Publisher       string   `yaml:"publisher"`
	Year            string   `yaml:"year"`
	ISBN            string   `yaml:"isbn"`
	Description     string   `yaml:"description"`
}

func (e catalogEntry) toModel() model.Book {
	total := model.Count(e.TotalCopies)
	available := total
	if e.CopiesAvailable != nil {
		available = min(model.Count(e.CopiesAvailable), total)
	}
	b := model.Book{
		ID:              e.ID,
		Title:           e.Title,
		Author:          e.Author,
		ShelfLocation:   e.Shelf,
		LayerNumber:     model.ParseLayer(e.Layer),
		TotalCopies:     total,
		CopiesAvailable: available,
		Category:        e.Category,
		Department:      e.Department,
		Publisher:       e.Publisher,
		Year:            e.Year,
		ISBN:            e.ISBN,
		Description:     e.Description,
	}
	b.ShelfLocation = b.Shelf()
	return b
}

// ParseCatalog decodes a YAML catalog. A missing copies_available means
// every copy is on the shelf.
func ParseCatalog(r io.Reader) ([]model.Book, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	books := make([]model.Book, 0, len(f.Books))
	for _, e := range f.Books {
		books = append(books, e.toModel())
	}
	return books, nil
}

// ImportFile loads the YAML catalog at path into dst and returns the number
// of books written.
func ImportFile(ctx context.Context, path string, dst repository.BookImporter) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	books, err := ParseCatalog(f)
	if err != nil {
		return 0, err
	}
	if len(books) == 0 {
		return 0, nil
	}
	if err := dst.Upsert(ctx, books); err != nil {
		return 0, err
	}
	return len(books), nil
}
