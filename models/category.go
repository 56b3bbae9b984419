package models

// Category classifies an expense. The set is closed.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryUtilities     Category = "utilities"
	CategoryOther         Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryEntertainment,
	CategoryShopping,
	CategoryHealth,
	CategoryEducation,
	CategoryUtilities,
	CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }
