package model

// Shelf describes a physical shelf and where it sits on the floor map.
// Positions are percentages of the map's width and height.
type Shelf struct {
	ID     string `json:"id"`
	Top    string `json:"top"`
	Left   string `json:"left"`
	Width  string `json:"width"`
	Height string `json:"height,omitempty"`
}

var shelves = []Shelf{
	{ID: "Outdated", Top: "5%", Left: "19%", Width: "32%", Height: "8%"},
	{ID: "1", Top: "16%", Left: "70%", Width: "15%"},
	{ID: "2", Top: "16%", Left: "53%", Width: "15%"},
	{ID: "3", Top: "16%", Left: "36%", Width: "15%"},
	{ID: "4", Top: "16%", Left: "19%", Width: "15%"},
	{ID: "5", Top: "34%", Left: "87%", Width: "15%"},
	{ID: "6", Top: "16%", Left: "87%", Width: "15%"},
	{ID: "7", Top: "5%", Left: "53%", Width: "32%", Height: "8%"},
	{ID: "8", Top: "16%", Left: "2%", Width: "15%"},
	{ID: "9", Top: "34%", Left: "2%", Width: "15%"},
	{ID: "10", Top: "52%", Left: "2%", Width: "15%"},
	{ID: "11", Top: "70%", Left: "2%", Width: "15%"},
	{ID: "12", Top: "77%", Left: "20%", Width: "35%", Height: "8%"},
	{ID: "13", Top: "52%", Left: "87%", Width: "15%"},
}

// Shelves returns a copy of the static shelf map.
func Shelves() []Shelf {
	out := make([]Shelf, len(shelves))
	copy(out, shelves)
	return out
}

// KnownShelf reports whether id names a shelf on the map.
func KnownShelf(id string) bool {
	for _, s := range shelves {
		if s.ID == id {
			return true
		}
	}
	return false
}
