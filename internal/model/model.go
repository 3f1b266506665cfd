// Package model defines the core domain types for the library availability tracker.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// UnknownShelf is the shelf id used for books without a recorded location.
const UnknownShelf = "Unknown"

// Layer is a shelf sub-division number. The zero value means "Unknown".
type Layer int

// LayerUnknown marks a book whose layer was never recorded.
const LayerUnknown Layer = 0

// ParseLayer converts a stored layer value into a Layer.
// Anything that is not a positive integer becomes LayerUnknown.
func ParseLayer(v any) Layer {
	n := Count(v)
	if n < 1 {
		return LayerUnknown
	}
	return Layer(n)
}

// Known reports whether the layer has a real number.
func (l Layer) Known() bool { return l >= 1 }

func (l Layer) String() string {
	if !l.Known() {
		return "Unknown"
	}
	return strconv.Itoa(int(l))
}

// MarshalJSON renders unknown layers as the string "Unknown".
func (l Layer) MarshalJSON() ([]byte, error) {
	if !l.Known() {
		return []byte(`"Unknown"`), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

// UnmarshalJSON accepts numbers, numeric strings and "Unknown".
func (l *Layer) UnmarshalJSON(b []byte) error {
	var v any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode layer: %w", err)
	}
	*l = ParseLayer(v)
	return nil
}

// Book is one catalog title with its location and copy counts.
type Book struct {
	ID              string   `json:"id"`
	Title           string   `json:"title,omitempty"`
	Author          string   `json:"author,omitempty"`
	ShelfLocation   string   `json:"shelf_location"`
	LayerNumber     Layer    `json:"layer_number"`
	TotalCopies     int      `json:"total_copies"`
	CopiesAvailable int      `json:"copies_available"`
	Category        []string `json:"category,omitempty"`
	Department      []string `json:"department,omitempty"`

	// Descriptive passthrough fields.
	Publisher   string `json:"publisher,omitempty"`
	Year        string `json:"year,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Description string `json:"description,omitempty"`

	// Version increments on every copy-count write.
	Version int64 `json:"version"`
}

// Shelf returns the shelf id, falling back to UnknownShelf.
func (b *Book) Shelf() string {
	if s := strings.TrimSpace(b.ShelfLocation); s != "" {
		return s
	}
	return UnknownShelf
}

// Count coerces a stored copy count into a non-negative integer.
// Malformed or non-numeric values count as zero.
func Count(v any) int {
	var n int64
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		n = int64(t)
	case uint32:
		n = int64(t)
	case uint64:
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		n = int64(t)
	case float32:
		return Count(float64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
			return 0
		}
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		n = int64(t)
	case []byte:
		return Count(string(t))
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = i
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return Count(f)
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// SessionStatus is the state of a reading session.
type SessionStatus string

const (
	StatusReading     SessionStatus = "Reading"
	StatusDoneReading SessionStatus = "Done Reading"
)

// Profile holds the reader fields captured when a session starts.
type Profile struct {
	FullName      string `json:"full_name"`
	Section       string `json:"section"`
	YearLevel     string `json:"year_level"`
	Department    string `json:"department"`
	StudentNumber string `json:"student_number"`
}

// Missing lists the names of empty profile fields.
func (p Profile) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"full_name", p.FullName},
		{"section", p.Section},
		{"year_level", p.YearLevel},
		{"department", p.Department},
		{"student_number", p.StudentNumber},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// NormalizeStudentNumber trims and upper-cases a student number.
func NormalizeStudentNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ReadingSession records one reader holding one copy of a book.
type ReadingSession struct {
	ID string `json:"id"`
	Profile
	BookID            string        `json:"book_id,omitempty"`
	BookTitle         string        `json:"book_title"`
	Status            SessionStatus `json:"status"`
	Timestamp         time.Time     `json:"timestamp"`
	FinishedTimestamp *time.Time    `json:"finished_timestamp,omitempty"`
}

// Open reports whether the session is still being read.
func (s *ReadingSession) Open() bool { return s.Status == StatusReading }

// SessionPatch is a conditional status change applied by a session store.
// The update only happens when the stored status equals From.
type SessionPatch struct {
	From       SessionStatus
	Status     SessionStatus
	FinishedAt *time.Time
}

// Highlight points the shelf map at one book.
type Highlight struct {
	ShelfID string `json:"shelf_id"`
	Layer   Layer  `json:"layer"`
	BookID  string `json:"book_id"`
}

// StartReadingRequest is the payload for starting a reading session.
type StartReadingRequest struct {
	Profile
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
