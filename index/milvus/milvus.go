//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package milvus implements the dense chunk store on a Milvus collection.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"
	milvusindex "github.com/milvus-io/milvus/client/v2/index"
	client "github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/log"
)

// Collection field names. pageRangeField stores the hierarchy-path
// breadcrumb and sourceField the section type; the names are kept for
// bit-compatibility with existing collections.
const (
	idField         = "id"
	paperIDField    = "paper_id"
	chunkIDField    = "chunk_id"
	chunkIndexField = "chunk_index"
	embeddingField  = "embedding"
	titleField      = "title"
	fileNameField   = "file_name"
	contentField    = "content"
	chunkCharsField = "chunk_chars"
	pageRangeField  = "page_range"
	uploadTimeField = "upload_time"
	sourceField     = "source"
)

const (
	defaultCollection = "paper_chunks"
	defaultDimension  = 1536
	ivfNlist          = 1024
	ivfNprobe         = 10
)

// Store implements index.DenseStore on Milvus.
type Store struct {
	client     *client.Client
	collection string
	dimension  int

	mu     sync.Mutex
	loaded bool
}

var _ index.DenseStore = (*Store)(nil)

type options struct {
	address    string
	username   string
	password   string
	dbName     string
	collection string
	dimension  int
}

// Option configures the Store.
type Option func(*options)

// WithAddress sets the Milvus server address.
func WithAddress(addr string) Option {
	return func(o *options) { o.address = addr }
}

// WithAuth sets username and password.
func WithAuth(username, password string) Option {
	return func(o *options) { o.username, o.password = username, password }
}

// WithDBName sets the database name.
func WithDBName(name string) Option {
	return func(o *options) { o.dbName = name }
}

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(o *options) { o.collection = name }
}

// WithDimension sets the embedding dimension.
func WithDimension(dim int) Option {
	return func(o *options) {
		if dim > 0 {
			o.dimension = dim
		}
	}
}

// New connects to Milvus and returns a Store. The collection is created on
// the first EnsureCollection call, not here.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := options{collection: defaultCollection, dimension: defaultDimension}
	for _, opt := range opts {
		opt(&o)
	}
	if o.address == "" {
		return nil, fmt.Errorf("milvus address is empty")
	}
	cfg := client.ClientConfig{
		Address:  o.address,
		Username: o.username,
		Password: o.password,
		DBName:   o.dbName,
	}
	c, err := client.New(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("create milvus client: %w", err)
	}
	return &Store{client: c, collection: o.collection, dimension: o.dimension}, nil
}

// Close releases the client connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// EnsureCollection implements index.DenseStore. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, client.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "paper chunk embeddings",
		AutoID:         true,
		Fields: []*entity.Field{
			entity.NewField().
				WithName(idField).
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true).
				WithIsAutoID(true),
			entity.NewField().
				WithName(paperIDField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255),
			entity.NewField().
				WithName(chunkIDField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(300),
			entity.NewField().
				WithName(chunkIndexField).
				WithDataType(entity.FieldTypeInt64),
			entity.NewField().
				WithName(embeddingField).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(s.dimension)),
			entity.NewField().
				WithName(titleField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(1000),
			entity.NewField().
				WithName(fileNameField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(500),
			entity.NewField().
				WithName(contentField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(65535),
			entity.NewField().
				WithName(chunkCharsField).
				WithDataType(entity.FieldTypeInt64),
			entity.NewField().
				WithName(pageRangeField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(200),
			entity.NewField().
				WithName(uploadTimeField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(50),
			entity.NewField().
				WithName(sourceField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(100),
		},
	}
	indexOption := client.NewCreateIndexOption(s.collection, embeddingField,
		milvusindex.NewIvfFlatIndex(entity.L2, ivfNlist))
	if err := s.client.CreateCollection(ctx,
		client.NewCreateCollectionOption(s.collection, schema).WithIndexOptions(indexOption)); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	log.Infof("created milvus collection %s (dim=%d)", s.collection, s.dimension)
	return nil
}

// ensureLoaded loads the collection into memory once.
func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	loadTask, err := s.client.LoadCollection(ctx, client.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for load collection: %w", err)
	}
	s.loaded = true
	return nil
}

// Insert implements index.DenseStore.
func (s *Store) Insert(ctx context.Context, meta index.PaperMeta, chunks []chunking.Chunk, vectors [][]float64) error {
	if len(chunks) == 0 {
		return index.ErrNoChunks
	}
	if len(chunks) != len(vectors) {
		return index.ErrLengthMismatch
	}
	n := len(chunks)
	paperIDs := make([]string, n)
	chunkIDs := make([]string, n)
	chunkIndexes := make([]int64, n)
	embeddings := make([][]float32, n)
	titles := make([]string, n)
	fileNames := make([]string, n)
	contents := make([]string, n)
	chunkChars := make([]int64, n)
	pageRanges := make([]string, n)
	uploadTimes := make([]string, n)
	sources := make([]string, n)
	for i, ch := range chunks {
		paperIDs[i] = meta.PaperID
		chunkIDs[i] = ch.ChunkID
		chunkIndexes[i] = int64(ch.Index)
		embeddings[i] = toFloat32(vectors[i])
		titles[i] = meta.Title
		fileNames[i] = meta.FileName
		contents[i] = ch.Content
		chunkChars[i] = int64(ch.Chars)
		pageRanges[i] = ch.HierarchyPath
		uploadTimes[i] = meta.UploadTime
		sources[i] = ch.SectionType
	}
	insertOption := client.NewColumnBasedInsertOption(s.collection).
		WithVarcharColumn(paperIDField, paperIDs).
		WithVarcharColumn(chunkIDField, chunkIDs).
		WithInt64Column(chunkIndexField, chunkIndexes).
		WithFloatVectorColumn(embeddingField, s.dimension, embeddings).
		WithVarcharColumn(titleField, titles).
		WithVarcharColumn(fileNameField, fileNames).
		WithVarcharColumn(contentField, contents).
		WithInt64Column(chunkCharsField, chunkChars).
		WithVarcharColumn(pageRangeField, pageRanges).
		WithVarcharColumn(uploadTimeField, uploadTimes).
		WithVarcharColumn(sourceField, sources)
	if _, err := s.client.Insert(ctx, insertOption); err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}
	flushTask, err := s.client.Flush(ctx, client.NewFlushOption(s.collection))
	if err != nil {
		return fmt.Errorf("milvus flush: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for flush: %w", err)
	}
	return nil
}

// Search implements index.DenseStore.
func (s *Store) Search(ctx context.Context, vector []float64, k int, paperID string) ([]index.SearchResult, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	searchOption := client.NewSearchOption(s.collection, k,
		[]entity.Vector{entity.FloatVector(toFloat32(vector))})
	searchOption.WithANNSField(embeddingField)
	searchOption.WithAnnParam(milvusindex.NewIvfAnnParam(ivfNprobe))
	searchOption.WithFilter(searchFilter(paperID))
	searchOption.WithOutputFields([]string{"*"}...)
	resultSets, err := s.client.Search(ctx, searchOption)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(resultSets) == 0 {
		return nil, nil
	}
	return convertResultSet(resultSets[0])
}

// searchFilter builds the boolean filter expression. Unscoped searches
// exclude the reserved memory namespace.
func searchFilter(paperID string) string {
	if paperID != "" {
		return fmt.Sprintf("%s == %s", paperIDField, quoteJSON(paperID))
	}
	return fmt.Sprintf(`not (%s like "%s%%")`, paperIDField, index.MemoryPaperIDPrefix)
}

// DeleteByPaper implements index.DenseStore.
func (s *Store) DeleteByPaper(ctx context.Context, paperID string) error {
	expr := fmt.Sprintf("%s == %s", paperIDField, quoteJSON(paperID))
	if _, err := s.client.Delete(ctx,
		client.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("milvus delete: %w", err)
	}
	return nil
}

// Stats implements index.DenseStore.
func (s *Store) Stats(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStats(ctx, client.NewGetCollectionStatsOption(s.collection))
	if err != nil {
		return 0, fmt.Errorf("collection stats: %w", err)
	}
	rowCount, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse row_count: %w", err)
	}
	return rowCount, nil
}

func convertResultSet(rs client.ResultSet) ([]index.SearchResult, error) {
	n := rs.ResultCount
	if n == 0 {
		return nil, nil
	}
	results := make([]index.SearchResult, n)
	for i := 0; i < n; i++ {
		// L2 search scores are distances.
		distance := float64(rs.Scores[i])
		results[i].Distance = distance
		results[i].Score = 1 / (1 + distance)
	}
	type stringTarget struct {
		field  string
		assign func(i int, v string)
	}
	stringTargets := []stringTarget{
		{paperIDField, func(i int, v string) { results[i].PaperID = v }},
		{chunkIDField, func(i int, v string) { results[i].ChunkID = v }},
		{contentField, func(i int, v string) { results[i].Content = v }},
		{titleField, func(i int, v string) { results[i].Title = v }},
		{fileNameField, func(i int, v string) { results[i].FileName = v }},
		{pageRangeField, func(i int, v string) { results[i].HierarchyPath = v }},
		{sourceField, func(i int, v string) { results[i].SectionType = v }},
	}
	for _, target := range stringTargets {
		col := rs.GetColumn(target.field)
		if col == nil {
			continue
		}
		for i := 0; i < n && i < col.Len(); i++ {
			v, err := col.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", target.field, err)
			}
			target.assign(i, v)
		}
	}
	if col := rs.GetColumn(chunkIndexField); col != nil {
		for i := 0; i < n && i < col.Len(); i++ {
			v, err := col.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", chunkIndexField, err)
			}
			results[i].ChunkIndex = int(v)
		}
	}
	return results, nil
}

// quoteJSON renders an identifier as a JSON string so filter expressions
// cannot be broken out of.
func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
