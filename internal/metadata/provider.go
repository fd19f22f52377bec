package metadata

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/dmateos/shelfwise/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fetcher combines the Open Library and Google Books clients behind one
// provider: Open Library primary for ISBN lookups, Google Books fallback and
// title search. Each upstream sits behind its own circuit breaker so a
// flapping provider degrades to its peer instead of stalling every AddEntry.
type Fetcher struct {
	openLibrary *OpenLibraryClient
	googleBooks *GoogleBooksClient
	olBreaker   *gobreaker.CircuitBreaker
	gbBreaker   *gobreaker.CircuitBreaker
	log         *logrus.Logger
}

func NewFetcher(openLibrary *OpenLibraryClient, googleBooks *GoogleBooksClient, log *logrus.Logger) *Fetcher {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &Fetcher{
		openLibrary: openLibrary,
		googleBooks: googleBooks,
		olBreaker:   gobreaker.NewCircuitBreaker(settings("open_library")),
		gbBreaker:   gobreaker.NewCircuitBreaker(settings("google_books")),
		log:         log,
	}
}

// Fetch implements app.MetadataProvider. Returns domain.ErrMetadataNotFound
// when neither provider yields a usable record.
func (f *Fetcher) Fetch(ctx context.Context, lookup domain.Lookup) (*domain.Metadata, error) {
	if lookup.Empty() {
		return nil, domain.ErrMetadataNotFound
	}

	var primary *domain.Metadata
	if lookup.ISBN != "" {
		result, err := f.olBreaker.Execute(func() (interface{}, error) {
			return f.openLibrary.FetchByISBN(ctx, lookup.ISBN)
		})
		if err != nil {
			f.log.WithError(err).WithField("isbn", lookup.ISBN).Warn("open library lookup failed")
		} else if md, ok := result.(*domain.Metadata); ok {
			primary = md
		}
	}

	var fallback *domain.Metadata
	result, err := f.gbBreaker.Execute(func() (interface{}, error) {
		return f.googleBooks.Fetch(ctx, lookup)
	})
	if err != nil {
		f.log.WithError(err).Warn("google books lookup failed")
	} else if md, ok := result.(*domain.Metadata); ok {
		fallback = md
	}

	merged := Merge(primary, fallback, lookup)
	if merged == nil {
		return nil, domain.ErrMetadataNotFound
	}
	return merged, nil
}
