// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The working document is a preamble followed by chapter sections, each
// introduced by a marker line. Writing a chapter replaces its section, so
// regenerating a chapter after a fix or rollback never duplicates it.

var (
	markerLine  = regexp.MustCompile(`(?m)^<!-- chapter:(\d+) -->[ \t]*$`)
	headingLine = regexp.MustCompile(`^#{1,6}[ \t]+(.+?)[ \t]*#*[ \t]*$`)
)

func marker(n int) string {
	return fmt.Sprintf("<!-- chapter:%d -->", n)
}

type document struct {
	preamble string
	chapters map[int]string
}

func parseDocument(text string) document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	doc := document{chapters: map[int]string{}}
	locs := markerLine.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		doc.preamble = strings.Trim(text, "\n")
		return doc
	}
	doc.preamble = strings.Trim(text[:locs[0][0]], "\n")
	for i, loc := range locs {
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		doc.chapters[n] = strings.Trim(text[loc[1]:end], "\n")
	}
	return doc
}

func (d document) numbers() []int {
	nums := make([]int, 0, len(d.chapters))
	for n := range d.chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (d document) render(withMarkers bool) string {
	var parts []string
	if d.preamble != "" {
		parts = append(parts, d.preamble)
	}
	for _, n := range d.numbers() {
		body := d.chapters[n]
		switch {
		case withMarkers && body == "":
			parts = append(parts, marker(n))
		case withMarkers:
			parts = append(parts, marker(n)+"\n\n"+body)
		case body != "":
			parts = append(parts, body)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// WriteChapter returns text with chapter n's section set to body.
func WriteChapter(text string, n int, body string) string {
	doc := parseDocument(text)
	doc.chapters[n] = strings.Trim(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	return doc.render(true)
}

// ChapterSection returns the body of chapter n.
func ChapterSection(text string, n int) (string, bool) {
	body, ok := parseDocument(text).chapters[n]
	return body, ok
}

// StripMarkers returns the document without chapter markers, as published.
func StripMarkers(text string) string {
	return parseDocument(text).render(false)
}

// Outline returns the heading titles of text in order, ignoring lines
// inside fenced code blocks.
func Outline(text string) []string {
	titles := []string{}
	fence := ""
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := fenceLine.FindStringSubmatch(line); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case fence == m[1]:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}
		if m := headingLine.FindStringSubmatch(line); m != nil {
			titles = append(titles, m[1])
		}
	}
	return titles
}
