package domain

// Category is a configured ticket type with routing and policy metadata.
// Categories are loaded once at startup and immutable afterwards.
type Category struct {
	Label        string
	Emoji        string
	Value        string
	Description  string
	ParentID     string
	RequiresForm bool
	RequiresRole bool
}

// CategorySet provides lookup by value over the configured categories,
// preserving configuration order for UI rendering.
type CategorySet struct {
	ordered []Category
	byValue map[string]Category
}

// NewCategorySet builds a set from the configured category list.
func NewCategorySet(categories []Category) *CategorySet {
	set := &CategorySet{
		ordered: append([]Category{}, categories...),
		byValue: make(map[string]Category, len(categories)),
	}
	for _, c := range categories {
		set.byValue[c.Value] = c
	}
	return set
}

// Get returns the category for a value. Unknown values are rejected by
// callers rather than silently defaulted.
func (s *CategorySet) Get(value string) (Category, bool) {
	c, ok := s.byValue[value]
	return c, ok
}

// All returns categories in configuration order.
func (s *CategorySet) All() []Category {
	return s.ordered
}

// Len reports the number of configured categories.
func (s *CategorySet) Len() int {
	return len(s.ordered)
}
