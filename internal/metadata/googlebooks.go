package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmateos/shelfwise/internal/domain"
)

const defaultGoogleBooksBaseURL = "https://www.googleapis.com"

// GoogleBooksClient fetches book metadata from the Google Books volumes API.
// Used as the fallback source, and the only source for title-based lookups.
type GoogleBooksClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGoogleBooksClient(baseURL string, httpClient *http.Client) *GoogleBooksClient {
	if baseURL == "" {
		baseURL = defaultGoogleBooksBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleBooksClient{baseURL: baseURL, httpClient: httpClient}
}

type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Fetch queries by ISBN when available, otherwise by title (and author).
// Returns (nil, nil) when no volume matches.
func (c *GoogleBooksClient) Fetch(ctx context.Context, lookup domain.Lookup) (*domain.Metadata, error) {
	var query string
	switch {
	case lookup.ISBN != "":
		query = "isbn:" + lookup.ISBN
	case lookup.Title != "":
		query = "intitle:" + lookup.Title
		if len(lookup.Authors) > 0 {
			query += "+inauthor:" + lookup.Authors[0]
		}
	default:
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/books/v1/volumes?q=%s&maxResults=1", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("google books request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google books fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google books fetch: unexpected status %d", resp.StatusCode)
	}

	var payload googleBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("google books decode: %w", err)
	}
	if payload.TotalItems == 0 || len(payload.Items) == 0 {
		return nil, nil
	}

	info := payload.Items[0].VolumeInfo
	if info.Title == "" {
		return nil, nil
	}

	md := &domain.Metadata{
		Title:           info.Title,
		Authors:         info.Authors,
		Publisher:       info.Publisher,
		PublicationYear: yearFromDate(info.PublishedDate),
		Description:     info.Description,
		CoverURL:        strings.ReplaceAll(info.ImageLinks.Thumbnail, "http://", "https://"),
		Source:          "google_books",
	}
	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_10":
			md.ISBN10 = domain.NormalizeISBN(id.Identifier)
		case "ISBN_13":
			md.ISBN13 = domain.NormalizeISBN(id.Identifier)
		}
	}
	return md, nil
}
