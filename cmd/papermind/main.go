//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Command papermind runs the research-assistant backend: paper ingestion
// and hybrid search under /vector, and the tool-using agent under /agent.
//
// Configuration is environment-driven:
//
//	OPENAI_API_KEY / OPENAI_BASE_URL   chat and embedding credentials
//	MODEL_NAME                         main agent model (default gpt-4o-mini)
//	LIGHT_MODEL_NAME                   summaries and translation (default MODEL_NAME)
//	EMBEDDING_MODEL / EMBEDDING_DIM    embedding deployment
//	MILVUS_ADDRESS                     vector store (default localhost:19530)
//	REDIS_ADDR                         enables summaries, caching and checkpoints
//	RERANKER_URL                       enables cross-encoder reranking
//	OPENALEX_EMAIL                     polite-pool contact for literature search
//	JWT_SECRET                         enables bearer-token auth
//	LISTEN_ADDR                        default :8000
//	LOG_LEVEL                          debug, info, warn or error
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papermind/papermind/agent"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/index/bm25"
	"github.com/papermind/papermind/index/milvus"
	"github.com/papermind/papermind/ingest"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/memory"
	"github.com/papermind/papermind/model/openai"
	"github.com/papermind/papermind/parser"
	"github.com/papermind/papermind/retrieval"
	"github.com/papermind/papermind/server"
	"github.com/papermind/papermind/tool"
	"github.com/papermind/papermind/tool/literature"
	"github.com/papermind/papermind/tool/papers"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetLevel(envOr("LOG_LEVEL", "info"))
	if err := run(); err != nil {
		log.Errorf("papermind exited: %v", err)
		os.Exit(1)
	}
}

func run() error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	modelName := envOr("MODEL_NAME", "gpt-4o-mini")
	chat := openai.New(modelName)
	light := openai.New(envOr("LIGHT_MODEL_NAME", modelName))

	var embedOpts []openai.EmbedderOption
	if name := os.Getenv("EMBEDDING_MODEL"); name != "" {
		embedOpts = append(embedOpts, openai.WithEmbeddingModel(name))
	}
	if dim, err := strconv.Atoi(os.Getenv("EMBEDDING_DIM")); err == nil {
		embedOpts = append(embedOpts, openai.WithDimensions(dim))
	}
	embedder := openai.NewEmbedder(embedOpts...)

	dense, err := milvus.New(startCtx,
		milvus.WithAddress(envOr("MILVUS_ADDRESS", "localhost:19530")),
		milvus.WithDimension(embedder.Dimensions()),
	)
	if err != nil {
		return err
	}
	if err := dense.EnsureCollection(startCtx); err != nil {
		return err
	}
	dual := index.NewDual(dense, bm25.New(), embedder)

	retrOpts := []retrieval.Option{retrieval.WithTranslator(light)}
	if url := os.Getenv("RERANKER_URL"); url != "" {
		retrOpts = append(retrOpts, retrieval.WithReranker(
			retrieval.NewHTTPReranker(retrieval.WithRerankerEndpoint(url))))
	}
	retriever := retrieval.New(dual, retrOpts...)

	catalog := ingest.NewCatalog()
	pipeline, err := ingest.NewPipeline(parser.New(chat), dual, catalog)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	registry := tool.NewRegistry()
	askTool := papers.NewAskTool(retriever, chat)
	lit := literature.NewClient(literature.WithContactEmail(os.Getenv("OPENALEX_EMAIL")))
	for _, t := range []tool.Tool{
		literature.NewSearchTool(lit),
		literature.NewDetailTool(lit),
		literature.NewRelatedTool(lit),
		papers.NewListTool(catalog),
		papers.NewContentTool(catalog),
		papers.NewSemanticTool(retriever),
		askTool,
		papers.NewAnalyzeTool(catalog, chat),
		papers.NewMindmapTool(catalog, chat),
		papers.NewCompareTool(catalog, chat),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	executor := agent.NewExecutor(registry, agent.NewBreakerManager())

	store := memory.NewInMemoryStore()
	var history agent.History = store
	var cache *memory.ConversationCache
	managerOpts := []memory.ManagerOption{
		memory.WithWindow(memory.NewHybridWindow(10, light.Info().Name, 8000)),
		memory.WithSemanticMemory(memory.NewSemanticMemory(light, dual)),
	}
	var agentOpts []agent.Option
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(startCtx).Err(); err != nil {
			return err
		}
		managerOpts = append(managerOpts, memory.WithSummarizer(memory.NewSummarizer(light, rdb)))
		cache = memory.NewConversationCache(rdb, store)
		defer cache.Close()
		history = cache
		agentOpts = append(agentOpts, agent.WithCheckpointSaver(memory.NewRedisCheckpointSaver(rdb)))
	}
	manager := memory.NewManager(managerOpts...)
	agentOpts = append(agentOpts, agent.WithHistory(history), agent.WithMemoryManager(manager))
	ag := agent.New(chat, executor, agentOpts...)

	srv := server.New(ag, executor, registry, pipeline, retriever,
		server.WithStore(store),
		server.WithMemoryManager(manager),
		server.WithAskTool(askTool),
		server.WithJWTSecret([]byte(os.Getenv("JWT_SECRET"))),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(envOr("LISTEN_ADDR", ":8000")) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	if err := dense.Close(shutdownCtx); err != nil {
		log.Warnf("close vector store: %v", err)
	}
	return nil
}
