package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"chatanything/types"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/google/uuid"
)

// BleveStore keeps the chunk table in a local full-text index. It needs no
// database or embedding server, which makes it the backend for laptops and tests.
type BleveStore struct {
	index  bleve.Index
	logger *slog.Logger
}

// NewBleveStore opens the index at path, creating it when missing. An empty
// path gives a memory-only index.
func NewBleveStore(path string) (*BleveStore, error) {
	var (
		idx bleve.Index
		err error
	)
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(chunkMapping())
	default:
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, chunkMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &BleveStore{
		index:  idx,
		logger: slog.Default().With("component", "bleve"),
	}, nil
}

func chunkMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(types.ColumnChunk, text)
	doc.AddFieldMappingsAt(types.ColumnRelativePath, exact)
	doc.AddFieldMappingsAt(types.ColumnCategory, exact)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (b *BleveStore) InsertChunk(_ context.Context, c types.ChunkRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return b.index.Index(c.ID.String(), map[string]interface{}{
		types.ColumnChunk:        c.Text,
		types.ColumnRelativePath: c.SourcePath,
		types.ColumnCategory:     string(c.Category),
	})
}

func (b *BleveStore) Search(_ context.Context, q types.SearchQuery) ([]types.SearchResult, error) {
	if err := checkColumns(q.Columns); err != nil {
		return nil, err
	}
	match := bleve.NewMatchQuery(q.Query)
	match.SetField(types.ColumnChunk)

	var search query.Query = match
	if q.Category != "" {
		term := bleve.NewTermQuery(string(q.Category))
		term.SetField(types.ColumnCategory)
		search = bleve.NewConjunctionQuery(match, term)
	}

	req := bleve.NewSearchRequestOptions(search, limitOrDefault(q.Limit), 0, false)
	req.Fields = q.Columns
	if len(req.Fields) == 0 {
		req.Fields = types.SearchColumns
	}
	res, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]types.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, _ := uuid.Parse(hit.ID)
		out = append(out, types.SearchResult{
			ChunkRecord: types.ChunkRecord{
				ID:         id,
				Text:       fieldString(hit.Fields, types.ColumnChunk),
				SourcePath: fieldString(hit.Fields, types.ColumnRelativePath),
				Category:   types.Category(fieldString(hit.Fields, types.ColumnCategory)),
			},
			Score: hit.Score,
		})
	}
	return out, nil
}

func (b *BleveStore) DistinctPaths(_ context.Context) ([]string, error) {
	return b.distinct(types.ColumnRelativePath)
}

func (b *BleveStore) DistinctCategories(_ context.Context) ([]types.Category, error) {
	values, err := b.distinct(types.ColumnCategory)
	if err != nil {
		return nil, err
	}
	out := make([]types.Category, len(values))
	for i, v := range values {
		out[i] = types.Category(v)
	}
	return out, nil
}

func (b *BleveStore) distinct(field string) ([]string, error) {
	hits, err := b.all(bleve.NewMatchAllQuery(), field)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, h := range hits {
		if v := fieldString(h, field); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BleveStore) DeleteByPath(_ context.Context, path string) error {
	term := bleve.NewTermQuery(path)
	term.SetField(types.ColumnRelativePath)

	req, err := b.fullRequest(term)
	if err != nil || req == nil {
		return err
	}
	res, err := b.index.Search(req)
	if err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return err
	}
	b.logger.Info("deleted chunks", "path", path, "rows", len(res.Hits))
	return nil
}

// all returns the requested fields of every document matching q.
func (b *BleveStore) all(q query.Query, fields ...string) ([]map[string]interface{}, error) {
	req, err := b.fullRequest(q)
	if err != nil || req == nil {
		return nil, err
	}
	req.Fields = fields
	res, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.Fields)
	}
	return out, nil
}

// fullRequest sizes a request to the whole index. A nil request means the
// index is empty.
func (b *BleveStore) fullRequest(q query.Query) (*bleve.SearchRequest, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return bleve.NewSearchRequestOptions(q, int(n), 0, false), nil
}

func (b *BleveStore) Close() error {
	return b.index.Close()
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
