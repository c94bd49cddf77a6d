//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package bm25

import (
	"strings"
	"unicode"
)

// isHan reports whether r falls in the CJK unified ideographs block.
func isHan(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// Tokenize lower-cases ASCII, strips punctuation and splits the text into
// lexical tokens. Latin/digit words shorter than two characters are dropped.
// Han runs are segmented into overlapping bigrams plus unigrams, which
// approximates dictionary word segmentation well enough for BM25 matching.
func Tokenize(text string) []string {
	var (
		tokens []string
		word   strings.Builder
		han    []rune
	)
	flushWord := func() {
		if word.Len() >= 2 {
			tokens = append(tokens, word.String())
		}
		word.Reset()
	}
	flushHan := func() {
		if len(han) == 0 {
			return
		}
		for _, r := range han {
			tokens = append(tokens, string(r))
		}
		for i := 0; i+1 < len(han); i++ {
			tokens = append(tokens, string(han[i:i+2]))
		}
		han = han[:0]
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case isHan(r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			flushHan()
			word.WriteRune(r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return tokens
}
