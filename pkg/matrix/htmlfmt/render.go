// Copyright 2024-2026 Aiku AI

// Package htmlfmt converts between the relay's markdown flavoured text and
// Matrix message content.
package htmlfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^\w*])_(.+?)_($|[^\w*])`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	codeRe       = regexp.MustCompile("`([^`]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	blockquoteRe = regexp.MustCompile(`^>\s+(.+)$`)
	listItemRe   = regexp.MustCompile(`^[-*]\s+(.+)$`)
)

const placeholder = "\x00CODE"

// Render converts relay text to a Matrix message. Text without markup is
// sent as a plain body.
func Render(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}
	if text == "" || !hasMarkup(text) {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = toHTML(text)
	return content
}

func hasMarkup(text string) bool {
	for _, re := range []*regexp.Regexp{boldRe, italicRe, strikeRe, codeRe, codeBlockRe, linkRe} {
		if re.MatchString(text) {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if blockquoteRe.MatchString(line) || listItemRe.MatchString(line) {
			return true
		}
	}
	return false
}

func toHTML(text string) string {
	// Code is pulled out first so its content is never formatted.
	var blocks []string
	stash := func(s string) string {
		blocks = append(blocks, s)
		return placeholder + strconv.Itoa(len(blocks)-1) + "\x00"
	}
	text = codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		if parts[1] != "" {
			return stash(`<pre><code class="language-` + html.EscapeString(parts[1]) + `">` + html.EscapeString(parts[2]) + `</code></pre>`)
		}
		return stash(`<pre><code>` + html.EscapeString(parts[2]) + `</code></pre>`)
	})
	text = codeRe.ReplaceAllStringFunc(text, func(match string) string {
		return stash(`<code>` + html.EscapeString(codeRe.FindStringSubmatch(match)[1]) + `</code>`)
	})

	var out []string
	var items []string
	flush := func() {
		if len(items) > 0 {
			out = append(out, "<ul>"+strings.Join(items, "")+"</ul>")
			items = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			items = append(items, "<li>"+inline(m[1])+"</li>")
			continue
		}
		flush()
		if m := blockquoteRe.FindStringSubmatch(line); m != nil {
			out = append(out, "<blockquote>"+inline(m[1])+"</blockquote>")
			continue
		}
		out = append(out, inline(line))
	}
	flush()
	formatted := strings.Join(out, "<br/>")
	formatted = strings.ReplaceAll(formatted, "</ul><br/>", "</ul>")
	formatted = strings.ReplaceAll(formatted, "</blockquote><br/>", "</blockquote>")

	for i, block := range blocks {
		formatted = strings.Replace(formatted, placeholder+strconv.Itoa(i)+"\x00", block, 1)
	}
	return formatted
}

func inline(line string) string {
	line = html.EscapeString(line)
	line = boldRe.ReplaceAllString(line, "<strong>$1</strong>")
	line = italicRe.ReplaceAllString(line, "$1<em>$2</em>$3")
	line = strikeRe.ReplaceAllString(line, "<del>$1</del>")
	return linkRe.ReplaceAllStringFunc(line, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := parts[1], html.UnescapeString(parts[2])
		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
			return `<a href="` + html.EscapeString(href) + `">` + label + `</a>`
		}
		// Unsafe scheme such as javascript: or data: stays as plain text.
		return label
	})
}
