//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package retrieval

import "regexp"

// Query languages.
const (
	LangZH    = "zh"
	LangEN    = "en"
	LangMixed = "mixed"
)

var latinWordRe = regexp.MustCompile(`[a-zA-Z]+`)

// DetectLanguage classifies a query by its CJK codepoint ratio: zh at 30%
// or more, en below 10% with at least one Latin word, mixed otherwise.
func DetectLanguage(s string) string {
	var cjk, total int
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		total++
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	if total == 0 {
		return LangEN
	}
	ratio := float64(cjk) / float64(total)
	switch {
	case ratio >= 0.30:
		return LangZH
	case ratio < 0.10 && latinWordRe.MatchString(s):
		return LangEN
	default:
		return LangMixed
	}
}
