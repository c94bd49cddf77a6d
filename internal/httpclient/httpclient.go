//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package httpclient provides a shared HTTP client for cross-encoder
// rerank endpoints compatible with the Cohere/Infinity wire shape.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps an http.Client with the rerank call.
type Client struct {
	client *http.Client
}

// NewClient creates a Client. A nil argument gets a 30s-timeout default.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{client: client}
}

// RerankRequest is the request payload for reranking.
type RerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// RerankScore is one scored document reference in the response.
type RerankScore struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []RerankScore `json:"results"`
}

// Rerank posts the request and returns the per-document scores.
func (c *Client) Rerank(ctx context.Context, endpoint, apiKey string, payload RerankRequest) ([]RerankScore, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rsp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(rsp.Body)
		return nil, fmt.Errorf("status %d: %s", rsp.StatusCode, string(bodyBytes))
	}
	var apiRsp rerankResponse
	if err := json.NewDecoder(rsp.Body).Decode(&apiRsp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return apiRsp.Results, nil
}
