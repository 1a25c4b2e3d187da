// Package index keeps an in-memory full-text index of collection
// metadata. Results are candidates only; callers filter them for read
// permission.
package index

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/i5heu/ouroboros-keep/pkg/collection"
	"github.com/i5heu/ouroboros-keep/pkg/properties"
)

const DefaultLimit = 25

type Indexer struct {
	log *slog.Logger
	bi  bleve.Index
}

const (
	contentAnalyzerName    = "contentEdgeNgram"
	contentTokenFilterName = "contentEdgeFilter"
)

var textFields = []string{"name", "description", "files", "properties"}

func buildIndexMapping() (mapping.IndexMapping, error) { //A
	defaultMapping := bleve.NewDocumentMapping()
	for _, field := range textFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = contentAnalyzerName
		defaultMapping.AddFieldMappingsAt(field, fm)
	}
	for _, field := range []string{"owner", "pdh"} {
		fm := bleve.NewKeywordFieldMapping()
		defaultMapping.AddFieldMappingsAt(field, fm)
	}

	idxMapping := bleve.NewIndexMapping()
	idxMapping.DefaultMapping = defaultMapping
	idxMapping.DefaultAnalyzer = contentAnalyzerName

	if err := idxMapping.AddCustomTokenFilter(contentTokenFilterName, map[string]any{
		"type": edgengram.Name,
		"min":  3.0,
		"max":  25.0,
	}); err != nil {
		return nil, fmt.Errorf("add token filter: %w", err)
	}

	if err := idxMapping.AddCustomAnalyzer(contentAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			contentTokenFilterName,
		},
	}); err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	return idxMapping, nil
}

func NewIndexer(logger *slog.Logger) (*Indexer, error) { //A
	mapping, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}

	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		log: logger,
		bi:  index,
	}, nil
}

func (idx *Indexer) Close() error { //A
	return idx.bi.Close()
}

// ReindexAll indexes every record. Individual failures are logged and
// indexing continues.
func (idx *Indexer) ReindexAll(recs []collection.Record) int { //A
	indexed := 0
	for _, rec := range recs {
		if err := idx.IndexCollection(rec); err != nil {
			idx.log.Error("reindex: index collection failed", "uuid", rec.UUID, "error", err)
			continue
		}
		indexed++
	}
	idx.log.Info("reindex: completed", "total_indexed", indexed)
	return indexed
}

func (idx *Indexer) IndexCollection(rec collection.Record) error { //A
	if idx == nil {
		return fmt.Errorf("indexer is nil")
	}
	if rec.UUID == "" {
		return fmt.Errorf("collection has no uuid")
	}

	var files []string
	for _, f := range collection.Load(rec).Files() {
		files = append(files, f.Name)
	}

	doc := map[string]any{
		"name":        rec.Name,
		"description": rec.Description,
		"files":       strings.Join(files, " "),
		"properties":  strings.Join(propertyText(rec.Properties), " "),
		"owner":       rec.OwnerUUID,
		"pdh":         rec.PortableDataHash,
	}
	return idx.bi.Index(rec.UUID, doc)
}

// propertyText collects the string values of a properties map.
func propertyText(m properties.Map) []string { //A
	var out []string
	var walk func(v properties.Value)
	walk = func(v properties.Value) {
		switch x := v.(type) {
		case properties.String:
			out = append(out, string(x))
		case properties.List:
			for _, e := range x {
				walk(e)
			}
		case properties.Map:
			for _, k := range x.Keys() {
				walk(x[k])
			}
		}
	}
	walk(m)
	return out
}

func (idx *Indexer) Remove(uuid string) error { //A
	if idx == nil {
		return fmt.Errorf("indexer is nil")
	}
	return idx.bi.Delete(uuid)
}

// Search returns the uuids of matching collections, best match first.
func (idx *Indexer) Search(query string, limit int) ([]string, error) { //A
	if idx == nil {
		return nil, fmt.Errorf("indexer is nil")
	}
	if idx.bi == nil {
		return nil, fmt.Errorf("bleve index not initialized")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	match := bleve.NewMatchQuery(query)
	match.Analyzer = contentAnalyzerName
	search := bleve.NewSearchRequestOptions(match, limit, 0, false)

	res, err := idx.bi.Search(search)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit == nil || hit.ID == "" {
			continue
		}
		out = append(out, hit.ID)
	}
	return out, nil
}

// Count returns the number of indexed collections.
func (idx *Indexer) Count() (uint64, error) { //A
	return idx.bi.DocCount()
}
