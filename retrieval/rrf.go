//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"fmt"
	"sort"

	"github.com/papermind/papermind/index"
)

// RRFK is the reciprocal rank fusion constant.
const RRFK = 60

// Result is one hybrid retrieval hit with its fusion and rerank scores.
type Result struct {
	index.SearchResult
	RRFScore    float64 `json:"rrf_score"`
	RerankScore float64 `json:"rerank_score"`
}

// fusionKey joins dense and sparse hits for the same chunk.
func fusionKey(r index.SearchResult) string {
	if r.ChunkID != "" {
		return r.ChunkID
	}
	return fmt.Sprintf("%s#%d", r.PaperID, r.ChunkIndex)
}

// FuseRRF merges ranked lists by reciprocal rank fusion: each appearance at
// 0-based rank r contributes 1/(k+r+1). Documents tie-break by first
// insertion order, which keeps the fusion commutative whenever scores
// differ.
func FuseRRF(k int, lists ...[]index.SearchResult) []Result {
	type slot struct {
		result index.SearchResult
		score  float64
		order  int
	}
	slots := make(map[string]*slot)
	var keys []string
	for _, list := range lists {
		for rank, r := range list {
			key := fusionKey(r)
			s, ok := slots[key]
			if !ok {
				s = &slot{result: r, order: len(keys)}
				slots[key] = s
				keys = append(keys, key)
			}
			s.score += 1 / float64(k+rank+1)
		}
	}
	ordered := make([]*slot, 0, len(keys))
	for _, key := range keys {
		ordered = append(ordered, slots[key])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})
	fused := make([]Result, len(ordered))
	for i, s := range ordered {
		fused[i] = Result{SearchResult: s.result, RRFScore: s.score}
	}
	return fused
}
