package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the media kind a document was ingested as. It is stored on every
// chunk and used as the optional chat filter.
type Category string

const (
	CategoryPDF     Category = "PDF"
	CategoryDOCX    Category = "DOCX"
	CategoryTXT     Category = "TXT"
	CategoryYouTube Category = "YouTube"
	CategoryWebURL  Category = "Web URL"
	CategoryAudio   Category = "Audio"
	CategoryVideo   Category = "Video"
)

// CategoryAll is the chat selector value that disables category filtering.
const CategoryAll = "All"

// Categories lists the media kinds in the order the upload page offers them.
var Categories = []Category{
	CategoryPDF,
	CategoryDOCX,
	CategoryTXT,
	CategoryYouTube,
	CategoryWebURL,
	CategoryAudio,
	CategoryVideo,
}

var categoryExtensions = map[Category][]string{
	CategoryPDF:   {".pdf"},
	CategoryDOCX:  {".docx"},
	CategoryTXT:   {".txt"},
	CategoryAudio: {".mp3", ".wav"},
	CategoryVideo: {".mp4", ".mkv", ".mov"},
}

// ParseCategory accepts the stored spelling as well as the compact "WebURL" form,
// case-insensitively.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, c := range Categories {
		if strings.ToLower(strings.ReplaceAll(string(c), " ", "")) == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// IsURL reports whether documents of this category are located by URL rather than
// uploaded as a file.
func (c Category) IsURL() bool {
	return c == CategoryYouTube || c == CategoryWebURL
}

// Extensions returns the file extensions accepted for an uploaded category.
func (c Category) Extensions() []string {
	return categoryExtensions[c]
}

// Accepts reports whether filename carries an extension valid for the category.
func (c Category) Accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range categoryExtensions[c] {
		if e == ext {
			return true
		}
	}
	return false
}

// CategoryForFile derives the category of a file from its extension.
func CategoryForFile(filename string) (Category, bool) {
	for _, c := range Categories {
		if c.Accepts(filename) {
			return c, true
		}
	}
	return "", false
}

// ChunkRecord is one stored row: a bounded slice of a document's text.
type ChunkRecord struct {
	ID         uuid.UUID
	Text       string
	SourcePath string
	Category   Category
}

type SearchResult struct {
	ChunkRecord
	Score float64
}

// SearchQuery mirrors the search service request. An empty Category means no filter.
type SearchQuery struct {
	Query    string
	Columns  []string
	Category Category
	Limit    int
}

// Search columns known to every backend.
const (
	ColumnChunk        = "chunk"
	ColumnRelativePath = "relative_path"
	ColumnCategory     = "category"
)

var SearchColumns = []string{ColumnChunk, ColumnRelativePath, ColumnCategory}

// FilterFor turns the chat category selector value into a search filter.
func FilterFor(selected string) (Category, error) {
	if selected == "" || selected == CategoryAll {
		return "", nil
	}
	return ParseCategory(selected)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a chat transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RelatedDocument struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Upload describes one ingestion request. Source is what the extractor reads (a
// local file or a URL); Path is the relative_path recorded on every chunk.
type Upload struct {
	Source   string
	Path     string
	Category Category
}

type IngestResult struct {
	Path     string   `json:"path"`
	Category Category `json:"category"`
	Chunks   int      `json:"chunks"`
}

type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}
