//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package literature provides the OpenAlex-backed literature tools:
// work search, work detail and related-work discovery.
package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openalex.org"
	defaultTimeout = 30 * time.Second
	userAgent      = "papermind/1.0"
)

// Author is one work author.
type Author struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Concept is one OpenAlex concept tag on a work.
type Concept struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"display_name"`
	Level int     `json:"level"`
	Score float64 `json:"score"`
}

// Work is the condensed work representation tools return.
type Work struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Authors         []Author  `json:"authors,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Venue           string    `json:"venue,omitempty"`
	DOI             string    `json:"doi,omitempty"`
	CitedByCount    int       `json:"cited_by_count"`
	Abstract        string    `json:"abstract,omitempty"`
	OpenAccess      bool      `json:"open_access"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	Concepts        []Concept `json:"concepts,omitempty"`
}

// SearchFilters narrows a work search.
type SearchFilters struct {
	YearFrom       int
	YearTo         int
	OpenAccessOnly bool
	MinCitations   int
}

// Client talks to the OpenAlex works API.
type Client struct {
	baseURL string
	email   string
	client  *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithContactEmail adds the polite-pool contact address to requests.
func WithContactEmail(email string) ClientOption {
	return func(c *Client) { c.email = email }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient creates an OpenAlex client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchWorks runs a works search. sort is one of relevance,
// cited_by_count or publication_date.
func (c *Client) SearchWorks(ctx context.Context, query string, filters SearchFilters, sortBy string, limit int) ([]Work, int, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("sort", sortParam(sortBy))
	if filter := buildFilter(filters); filter != "" {
		params.Set("filter", filter)
	}

	var page worksPage
	if err := c.get(ctx, "/works?"+params.Encode(), &page); err != nil {
		return nil, 0, err
	}
	works := make([]Work, 0, len(page.Results))
	for _, raw := range page.Results {
		works = append(works, parseWork(raw))
	}
	return works, page.Meta.Count, nil
}

// GetWork fetches one work by OpenAlex id or full URL.
func (c *Client) GetWork(ctx context.Context, workID string) (*Work, error) {
	id := normalizeWorkID(workID)
	if id == "" {
		return nil, fmt.Errorf("openalex: empty work id")
	}
	var raw rawWork
	if err := c.get(ctx, "/works/"+url.PathEscape(id), &raw); err != nil {
		return nil, err
	}
	work := parseWork(raw)
	return &work, nil
}

// RelatedWorks finds works sharing the target's strongest concepts,
// ordered by citation count and excluding the work itself.
func (c *Client) RelatedWorks(ctx context.Context, workID string, limit int) ([]Work, error) {
	if limit <= 0 {
		limit = 10
	}
	work, err := c.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if len(work.Concepts) == 0 {
		return nil, nil
	}
	concepts := append([]Concept(nil), work.Concepts...)
	sort.Slice(concepts, func(i, j int) bool { return concepts[i].Score > concepts[j].Score })
	if len(concepts) > 3 {
		concepts = concepts[:3]
	}
	ids := make([]string, len(concepts))
	for i, concept := range concepts {
		ids[i] = normalizeWorkID(concept.ID)
	}

	params := url.Values{}
	params.Set("filter", fmt.Sprintf("concepts.id:%s,id:!%s",
		strings.Join(ids, "|"), normalizeWorkID(workID)))
	params.Set("sort", "cited_by_count:desc")
	params.Set("per_page", strconv.Itoa(limit))

	var page worksPage
	if err := c.get(ctx, "/works?"+params.Encode(), &page); err != nil {
		return nil, err
	}
	works := make([]Work, 0, len(page.Results))
	for _, raw := range page.Results {
		works = append(works, parseWork(raw))
	}
	return works, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("openalex: build request: %w", err)
	}
	ua := userAgent
	if c.email != "" {
		ua = fmt.Sprintf("%s (mailto:%s)", userAgent, c.email)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")

	rsp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("openalex: request failed: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(rsp.Body, 512))
		return fmt.Errorf("openalex: status %d: %s", rsp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(rsp.Body).Decode(out); err != nil {
		return fmt.Errorf("openalex: decode response: %w", err)
	}
	return nil
}

func sortParam(sortBy string) string {
	switch sortBy {
	case "cited_by_count":
		return "cited_by_count:desc"
	case "publication_date":
		return "publication_date:desc"
	default:
		return "relevance_score:desc"
	}
}

func buildFilter(f SearchFilters) string {
	var parts []string
	switch {
	case f.YearFrom > 0 && f.YearTo > 0:
		parts = append(parts, fmt.Sprintf("publication_year:%d-%d", f.YearFrom, f.YearTo))
	case f.YearFrom > 0:
		parts = append(parts, fmt.Sprintf("from_publication_date:%d-01-01", f.YearFrom))
	case f.YearTo > 0:
		parts = append(parts, fmt.Sprintf("to_publication_date:%d-12-31", f.YearTo))
	}
	if f.MinCitations > 0 {
		parts = append(parts, fmt.Sprintf("cited_by_count:>%d", f.MinCitations))
	}
	if f.OpenAccessOnly {
		parts = append(parts, "is_oa:true")
	}
	return strings.Join(parts, ",")
}

// normalizeWorkID strips the OpenAlex URL prefix when present.
func normalizeWorkID(id string) string {
	if idx := strings.LastIndexByte(id, '/'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// Wire shapes of the OpenAlex responses, reduced to what we read.

type worksPage struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []rawWork `json:"results"`
}

type rawWork struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	PublicationYear int              `json:"publication_year"`
	DOI             string           `json:"doi"`
	CitedByCount    int              `json:"cited_by_count"`
	Language        string           `json:"language"`
	AbstractIndex   map[string][]int `json:"abstract_inverted_index"`
	Authorships     []struct {
		Author struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	Concepts []struct {
		ID          string  `json:"id"`
		DisplayName string  `json:"display_name"`
		Level       int     `json:"level"`
		Score       float64 `json:"score"`
	} `json:"concepts"`
	OpenAccess struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

func parseWork(raw rawWork) Work {
	work := Work{
		ID:              raw.ID,
		Title:           raw.Title,
		PublicationYear: raw.PublicationYear,
		DOI:             raw.DOI,
		CitedByCount:    raw.CitedByCount,
		Abstract:        reconstructAbstract(raw.AbstractIndex),
		OpenAccess:      raw.OpenAccess.IsOA,
		Venue:           raw.PrimaryLocation.Source.DisplayName,
	}
	if work.Title == "" {
		work.Title = "Untitled"
	}
	if raw.OpenAccess.IsOA {
		work.PDFURL = raw.OpenAccess.OAURL
	}
	for _, a := range raw.Authorships {
		name := a.Author.DisplayName
		if name == "" {
			name = "Unknown"
		}
		work.Authors = append(work.Authors, Author{ID: a.Author.ID, Name: name})
	}
	for _, c := range raw.Concepts {
		work.Concepts = append(work.Concepts, Concept{
			ID:    c.ID,
			Name:  c.DisplayName,
			Level: c.Level,
			Score: c.Score,
		})
	}
	return work
}

// reconstructAbstract rebuilds the abstract text from the inverted index
// OpenAlex ships instead of plain text.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type slot struct {
		pos  int
		word string
	}
	var slots []slot
	for word, positions := range index {
		for _, pos := range positions {
			slots = append(slots, slot{pos: pos, word: word})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].pos < slots[j].pos })
	words := make([]string, len(slots))
	for i, s := range slots {
		words[i] = s.word
	}
	return strings.Join(words, " ")
}
