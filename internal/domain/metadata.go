package domain

// Metadata holds book metadata, either fetched from an external provider
// (raw) or finalized at approval (output).
type Metadata struct {
	ISBN            string   `json:"isbn,omitempty"`
	ISBN10          string   `json:"isbn_10,omitempty"`
	ISBN13          string   `json:"isbn_13,omitempty"`
	Title           string   `json:"title,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	PublicationYear string   `json:"publication_year,omitempty"`
	Edition         string   `json:"edition,omitempty"`
	Description     string   `json:"description,omitempty"`
	CoverURL        string   `json:"cover_url,omitempty"`
	Source          string   `json:"source,omitempty"`
}

// Lookup is the identifying data used to fetch metadata for a book.
type Lookup struct {
	ISBN    string
	Title   string
	Authors []string
}

func (l Lookup) Empty() bool {
	return l.ISBN == "" && l.Title == ""
}
