package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// DefaultMaxResults caps a search that does not set its own limit.
const DefaultMaxResults = 50

// ErrInvalidExpression marks a request whose expression or filters could
// not be parsed. Callers can distinguish it from execution failures.
var ErrInvalidExpression = errors.New("invalid search expression")

// Service executes searches over one collection at a time.
type Service struct {
	repo storage.Repository
	log  *slog.Logger
}

// NewService returns a search service.
func NewService(repo storage.Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, log: log}
}

// Search runs one request against a collection. The expression wins when
// both an expression and structured filters are present; with neither, every
// document is a candidate and only label/tag filters apply.
func (s *Service) Search(ctx context.Context, collectionID string, req *types.SearchRequest) (*types.SearchResult, error) {
	col, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var node Node
	switch {
	case req.Expression != "":
		node, err = Parse(req.Expression)
		if err != nil {
			return nil, fmt.Errorf("search: %w: %v", ErrInvalidExpression, err)
		}
	case len(req.Filters) > 0:
		node, err = FiltersToNode(req.Filters)
		if err != nil {
			return nil, fmt.Errorf("search: %w: %v", ErrInvalidExpression, err)
		}
	}

	// Selective collections answer predicates only for their declared
	// indexed fields; a predicate naming any other field matches nothing,
	// regardless of what the stored content says.
	if node != nil && col.IndexingMode == types.IndexingSelective {
		covered, err := s.selectiveCovered(ctx, col.ID, node)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if !covered {
			s.log.Debug("search names unindexed fields in selective collection",
				"collection", col.ID)
			return emptyResult(req), nil
		}
	}

	candidates, err := s.candidateIDs(ctx, col.ID, node)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches, err := s.confirm(ctx, col, candidates, node, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	docs, err := s.repo.GetDocumentsByIDs(ctx, matches)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	orderDocuments(docs, req.Ordering)

	matchCount := len(docs)
	skip := req.Skip
	if skip < 0 {
		skip = 0
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if skip >= len(docs) {
		docs = nil
	} else {
		docs = docs[skip:]
	}
	end := len(docs) <= maxResults
	if !end {
		docs = docs[:maxResults]
	}

	if req.IncludeContent && len(docs) > 0 {
		store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		for _, d := range docs {
			content, err := store.Read(d.ID)
			if err != nil {
				return nil, fmt.Errorf("search: %w", err)
			}
			d.Content = content
		}
	}

	s.log.Debug("search complete",
		"collection", col.ID, "candidates", len(candidates), "matches", matchCount, "returned", len(docs))
	return &types.SearchResult{
		Documents:    docs,
		MatchCount:   matchCount,
		Skip:         skip,
		MaxResults:   maxResults,
		EndOfResults: end,
	}, nil
}

// selectiveCovered reports whether every field the expression names is in
// the collection's indexed-field set.
func (s *Service) selectiveCovered(ctx context.Context, collectionID string, node Node) (bool, error) {
	fields, err := s.repo.ListIndexedFields(ctx, collectionID)
	if err != nil {
		return false, err
	}
	indexed := make(map[string]bool, len(fields))
	for _, f := range fields {
		indexed[f.FieldPath] = true
	}

	referenced := make(map[string]bool)
	referencedFields(node, referenced)
	for field := range referenced {
		if !indexed[field] {
			return false, nil
		}
	}
	return true, nil
}

// referencedFields gathers every field path the expression names.
func referencedFields(node Node, out map[string]bool) {
	switch n := node.(type) {
	case *AndNode:
		referencedFields(n.Left, out)
		referencedFields(n.Right, out)
	case *OrNode:
		referencedFields(n.Left, out)
		referencedFields(n.Right, out)
	case *NotNode:
		referencedFields(n.Operand, out)
	case *ComparisonNode:
		out[n.Field] = true
	}
}

// emptyResult is a zero-match page with the request's paging echoed back.
func emptyResult(req *types.SearchRequest) *types.SearchResult {
	skip := req.Skip
	if skip < 0 {
		skip = 0
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &types.SearchResult{Skip: skip, MaxResults: maxResults, EndOfResults: true}
}

// candidateIDs narrows the search through the index tables when the plan
// allows, falling back to every document in the collection.
func (s *Service) candidateIDs(ctx context.Context, collectionID string, node Node) ([]string, error) {
	if node == nil {
		return s.repo.ListDocumentIDs(ctx, collectionID)
	}

	pl := &planner{repo: s.repo}
	plan, err := pl.plan(ctx, collectionID, node)
	if err != nil {
		return nil, err
	}
	if plan.FullScan {
		return s.repo.ListDocumentIDs(ctx, collectionID)
	}

	rows, err := s.repo.ExecuteQuery(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, ok := row["id"].(string)
		if !ok {
			return nil, fmt.Errorf("candidate query returned non-string id: %v", row["id"])
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// confirm evaluates the full predicate plus label and tag filters against
// each candidate's stored content.
func (s *Service) confirm(ctx context.Context, col *types.Collection, candidates []string, node Node, req *types.SearchRequest) ([]string, error) {
	var store *blob.DirectoryStore
	if node != nil {
		var err error
		store, err = blob.NewDirectoryStore(col.DocumentsDirectory)
		if err != nil {
			return nil, err
		}
	}

	var matches []string
	for _, id := range candidates {
		if node != nil {
			content, err := store.Read(id)
			if err != nil {
				return nil, err
			}
			values, err := flatten.Flatten(content)
			if err != nil {
				return nil, fmt.Errorf("flatten document %s: %w", id, err)
			}
			matched, err := Evaluate(node, NewProjection(values))
			if err != nil {
				return nil, err
			}
			if !matched {
				continue
			}
		}

		ok, err := s.matchAnnotations(ctx, id, req)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, id)
	}
	return matches, nil
}

// matchAnnotations requires every requested label and tag pair to be
// present on the document.
func (s *Service) matchAnnotations(ctx context.Context, documentID string, req *types.SearchRequest) (bool, error) {
	if len(req.Labels) > 0 {
		labels, err := s.repo.ListDocumentLabels(ctx, documentID)
		if err != nil {
			return false, err
		}
		have := make(map[string]bool, len(labels))
		for _, l := range labels {
			have[l.Label] = true
		}
		for _, want := range req.Labels {
			if !have[want] {
				return false, nil
			}
		}
	}

	if len(req.Tags) > 0 {
		tags, err := s.repo.ListDocumentTags(ctx, documentID)
		if err != nil {
			return false, err
		}
		have := make(map[string]string, len(tags))
		for _, t := range tags {
			have[t.Key] = t.Value
		}
		for key, want := range req.Tags {
			if have[key] != want {
				return false, nil
			}
		}
	}
	return true, nil
}

// orderDocuments sorts in place. The default is newest first.
func orderDocuments(docs []*types.Document, ordering types.SearchOrdering) {
	switch ordering {
	case types.OrderCreatedAscending:
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].CreatedUTC.Before(docs[j].CreatedUTC)
		})
	case types.OrderName:
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Name != docs[j].Name {
				return docs[i].Name < docs[j].Name
			}
			return docs[i].ID < docs[j].ID
		})
	case types.OrderSize:
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].ContentLength != docs[j].ContentLength {
				return docs[i].ContentLength > docs[j].ContentLength
			}
			return docs[i].ID < docs[j].ID
		})
	default: // CreatedDescending
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[j].CreatedUTC.Before(docs[i].CreatedUTC)
		})
	}
}
