package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmateos/shelfwise/internal/domain"
)

const defaultOpenLibraryBaseURL = "https://openlibrary.org"

// OpenLibraryClient fetches book metadata from the Open Library books API.
type OpenLibraryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenLibraryClient(baseURL string, httpClient *http.Client) *OpenLibraryClient {
	if baseURL == "" {
		baseURL = defaultOpenLibraryBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenLibraryClient{baseURL: baseURL, httpClient: httpClient}
}

type openLibraryRecord struct {
	Title       string `json:"title"`
	PublishDate string `json:"publish_date"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Identifiers struct {
		ISBN10 []string `json:"isbn_10"`
		ISBN13 []string `json:"isbn_13"`
	} `json:"identifiers"`
}

// FetchByISBN queries Open Library for one ISBN. Returns (nil, nil) when the
// record is absent; the caller decides whether that is fatal.
func (c *OpenLibraryClient) FetchByISBN(ctx context.Context, isbn string) (*domain.Metadata, error) {
	key := "ISBN:" + isbn
	endpoint := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data",
		c.baseURL, url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("open library request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open library fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open library fetch: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]openLibraryRecord
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open library decode: %w", err)
	}

	record, ok := payload[key]
	if !ok || record.Title == "" {
		return nil, nil
	}

	md := &domain.Metadata{
		Title:           record.Title,
		PublicationYear: yearFromDate(record.PublishDate),
		Source:          "open_library",
	}
	for _, a := range record.Authors {
		if a.Name != "" {
			md.Authors = append(md.Authors, a.Name)
		}
	}
	if len(record.Publishers) > 0 {
		md.Publisher = record.Publishers[0].Name
	}
	md.CoverURL = firstNonEmpty(record.Cover.Large, record.Cover.Medium)
	if len(record.Identifiers.ISBN10) > 0 {
		md.ISBN10 = domain.NormalizeISBN(record.Identifiers.ISBN10[0])
	}
	if len(record.Identifiers.ISBN13) > 0 {
		md.ISBN13 = domain.NormalizeISBN(record.Identifiers.ISBN13[0])
	}
	return md, nil
}

// yearFromDate pulls a 4-digit year out of free-form publish dates like
// "Aug 01, 2008" or "2008".
func yearFromDate(date string) string {
	for _, field := range strings.FieldsFunc(date, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '/'
	}) {
		if len(field) == 4 && strings.IndexFunc(field, notDigit) == -1 {
			return field
		}
	}
	return ""
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
