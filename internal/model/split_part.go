package model

// SplitPart describes one piece of a transaction being split.
// Empty Description inherits the source transaction's description.
type SplitPart struct {
	Description string
	Category    string
	Subcategory string
	Notes       string
	Tags        []string
	Amount      float64
}
