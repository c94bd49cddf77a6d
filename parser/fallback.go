//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package parser

import (
	"regexp"
	"strings"
)

// sectionTypeKeywords classifies a heading by substring match, first hit wins.
var sectionTypeKeywords = []struct {
	sectionType string
	keywords    []string
}{
	{SectionAbstract, []string{"abstract", "摘要"}},
	{SectionIntroduction, []string{"introduction", "background", "引言", "背景", "绪论"}},
	{SectionRelatedWork, []string{"related work", "literature review", "相关工作", "文献综述"}},
	{SectionMethods, []string{"method", "methodology", "approach", "model", "framework", "方法", "模型"}},
	{SectionExperiments, []string{"experiment", "evaluation", "setup", "实验", "实验设置"}},
	{SectionResults, []string{"result", "finding", "结果", "实验结果"}},
	{SectionDiscussion, []string{"discussion", "analysis", "讨论", "分析"}},
	{SectionConclusion, []string{"conclusion", "summary", "future work", "结论", "总结"}},
	{SectionReferences, []string{"reference", "bibliography", "参考文献"}},
	{SectionAppendix, []string{"appendix", "附录"}},
}

var (
	abstractRe = regexp.MustCompile(
		`(?i)(?:Abstract|ABSTRACT|摘要)[:\s]*\n?([\s\S]*?)\n(?:1\.|I\.|Introduction|INTRODUCTION|引言|Keywords|关键词)`)
	headingRe = regexp.MustCompile(
		`(?i)\n(?:\d+\.?\s+|[IVX]+\.?\s+)?(?:Introduction|Methods?|Results?|Discussion|Conclusions?|Related Work|Experiments?|Background|引言|方法|结果|讨论|结论)`)
)

// ClassifySectionType maps a heading to a canonical section type.
func ClassifySectionType(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, entry := range sectionTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.sectionType
			}
		}
	}
	return SectionOther
}

// FallbackParse is the rule-based structure parser. It extracts the title
// from the first line, the abstract by pattern match, and splits the body
// on common section headings. If no heading matches, the whole text becomes
// one catch-all section.
func FallbackParse(text string) *Structure {
	trimmed := strings.TrimSpace(text)
	lines := strings.Split(trimmed, "\n")
	title := "Unknown"
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		title = strings.TrimSpace(lines[0])
	}

	var abstract string
	if m := abstractRe.FindStringSubmatch(text); m != nil {
		abstract = strings.TrimSpace(m[1])
	}

	var sections []Section
	// Heading matches delimit the sections; text before the first heading is
	// the front matter (title, abstract) and is skipped.
	locs := headingRe.FindAllStringIndex(text, -1)
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		part := strings.TrimSpace(text[loc[0]:end])
		partLines := strings.SplitN(part, "\n", 2)
		sectionTitle := strings.TrimSpace(partLines[0])
		var content string
		if len(partLines) > 1 {
			content = strings.TrimSpace(partLines[1])
		}
		sections = append(sections, Section{
			Type:    ClassifySectionType(sectionTitle),
			Title:   sectionTitle,
			Content: content,
		})
	}

	if len(sections) == 0 {
		sections = append(sections, Section{
			Type:    SectionOther,
			Title:   "Full Text",
			Content: text,
		})
	}

	return &Structure{
		Title:    title,
		Abstract: abstract,
		Sections: sections,
	}
}
