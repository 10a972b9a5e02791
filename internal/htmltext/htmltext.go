// Copyright (c) 2026 Planazoo
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package htmltext reduces HTML message bodies to plain text for the
// extraction pipeline. Line structure is preserved (label-block
// extraction depends on it) while runs of horizontal whitespace and
// non-breaking spaces are collapsed.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strip extracts the text content of an HTML document. Scripts and
// styles are dropped, each line is whitespace-collapsed, and blank-line
// runs shrink to a single separator. On unparseable input the raw
// string is returned with tags crudely removed.
func Strip(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(stripTagsCrude(html))
	}

	doc.Find("script, style").Remove()

	// Block elements end a line so label-delimited extraction still
	// sees one value per line.
	doc.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return collapse(doc.Text())
}

// collapse normalizes extracted text: per-line whitespace runs become
// single spaces, non-breaking spaces are removed, and consecutive empty
// lines collapse to one.
func collapse(text string) string {
	text = strings.ReplaceAll(text, " ", " ")

	var (
		out       []string
		lastBlank bool
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !lastBlank && len(out) > 0 {
				out = append(out, "")
			}
			lastBlank = true
			continue
		}
		out = append(out, line)
		lastBlank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTagsCrude removes anything between angle brackets. Fallback only.
func stripTagsCrude(html string) string {
	var (
		b     strings.Builder
		inTag bool
	)
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte('\n')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
