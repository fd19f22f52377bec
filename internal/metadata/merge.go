package metadata

import "github.com/dmateos/shelfwise/internal/domain"

// Merge combines provider results field by field: primary wins, fallback
// fills gaps, the caller's own input is the last resort. Returns nil when
// nothing usable came back from either provider.
func Merge(primary, fallback *domain.Metadata, lookup domain.Lookup) *domain.Metadata {
	if primary == nil && fallback == nil {
		return nil
	}
	if fallback == nil {
		fallback = &domain.Metadata{}
	}
	if primary == nil {
		primary = &domain.Metadata{}
	}

	merged := &domain.Metadata{
		ISBN:            lookup.ISBN,
		ISBN10:          firstNonEmpty(primary.ISBN10, fallback.ISBN10),
		ISBN13:          firstNonEmpty(primary.ISBN13, fallback.ISBN13),
		Title:           firstNonEmpty(primary.Title, fallback.Title, lookup.Title),
		Publisher:       firstNonEmpty(primary.Publisher, fallback.Publisher),
		PublicationYear: firstNonEmpty(primary.PublicationYear, fallback.PublicationYear),
		Edition:         firstNonEmpty(primary.Edition, fallback.Edition),
		Description:     firstNonEmpty(primary.Description, fallback.Description),
		CoverURL:        firstNonEmpty(primary.CoverURL, fallback.CoverURL),
		Source:          firstNonEmpty(primary.Source, fallback.Source),
	}

	switch {
	case len(primary.Authors) > 0:
		merged.Authors = primary.Authors
	case len(fallback.Authors) > 0:
		merged.Authors = fallback.Authors
	default:
		merged.Authors = lookup.Authors
	}

	if merged.ISBN10 == "" && merged.ISBN13 == "" {
		merged.ISBN10, merged.ISBN13 = domain.ClassifyISBN(lookup.ISBN)
	}

	if merged.Title == "" {
		return nil
	}
	if primary.Source != "" && fallback.Source != "" {
		merged.Source = primary.Source + "+" + fallback.Source
	}
	return merged
}
