package service

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// NormalizePage clamps skip/limit to sane bounds. A non-positive limit
// selects the default page size.
func NormalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return skip, limit
}
