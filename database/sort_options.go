package database

const (
	SortCreatedDesc = "created_desc"
	SortCreatedAsc  = "created_asc"
	SortNameNat     = "name_nat"
)

const DefaultSortOrder = SortCreatedDesc

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortCreatedDesc, SortCreatedAsc, SortNameNat:
		return true
	default:
		return false
	}
}
