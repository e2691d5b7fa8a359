package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/darkscore/darkscore-server/internal/domain"
)

// SearchParams configures a name search.
type SearchParams struct {
	Query   string
	Exclude []string // Player ids to leave out, e.g. the caller
	Limit   int
	Offset  int
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{Limit: 20}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one matching player.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Name  string  `json:"name"`
	Email string  `json:"email,omitempty"`
}

// Search finds players by name, tolerating typos and partial words.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	req.Fields = []string{"name", "email"}
	req.SortBy([]string{"-_score", "name"})

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		if n, ok := hit.Fields["name"].(string); ok {
			h.Name = n
		}
		if e, ok := hit.Fields["email"].(string); ok {
			h.Email = e
		}
		result.Hits = append(result.Hits, h)
	}
	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var must query.Query = bleve.NewMatchAllQuery()

	if q := strings.TrimSpace(params.Query); q != "" {
		nameMatch := bleve.NewMatchQuery(q)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		fuzzy := bleve.NewMatchQuery(q)
		fuzzy.SetField("name")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{nameMatch, fuzzy}

		// Prefix query for autocomplete on the last word (minimum 2 chars)
		words := strings.Fields(strings.ToLower(q))
		if last := words[len(words)-1]; len(last) >= 2 {
			prefix := bleve.NewPrefixQuery(last)
			prefix.SetField("name")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		if strings.Contains(q, "@") {
			email := bleve.NewTermQuery(normalize(q))
			email.SetField("email")
			email.SetBoost(5.0)
			textQueries = append(textQueries, email)
		}

		must = bleve.NewDisjunctionQuery(textQueries...)
	}

	if len(params.Exclude) == 0 {
		return must
	}

	bq := bleve.NewBooleanQuery()
	bq.AddMust(must)
	bq.AddMustNot(bleve.NewDocIDQuery(params.Exclude))
	return bq
}

func normalize(email string) string {
	return domain.NormalizeEmail(email)
}
