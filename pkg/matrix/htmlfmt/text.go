// Copyright 2024-2026 Aiku AI

package htmlfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	replyRe   = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	pillRe    = regexp.MustCompile(`<a href="https://matrix\.to/#/[@#!][^"]*"[^>]*>(.*?)</a>`)
	strongRe  = regexp.MustCompile(`(?s)<(?:strong|b)>(.*?)</(?:strong|b)>`)
	emRe      = regexp.MustCompile(`(?s)<(?:em|i)>(.*?)</(?:em|i)>`)
	delRe     = regexp.MustCompile(`(?s)<(?:del|s|strike)>(.*?)</(?:del|s|strike)>`)
	inlineRe  = regexp.MustCompile(`<code>(.*?)</code>`)
	preRe     = regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`)
	anchorRe  = regexp.MustCompile(`<a href="([^"]+)"[^>]*>(.*?)</a>`)
	brRe      = regexp.MustCompile(`<br\s*/?>`)
	quoteRe   = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	ulRe      = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe      = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe      = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	pRe       = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// ToText converts a received Matrix message to the markdown flavoured text
// the rest of the relay works with. Reply fallbacks are dropped and user
// pills become their display text.
func ToText(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return stripReplyFallback(content.Body)
	}

	text := replyRe.ReplaceAllString(content.FormattedBody, "")
	text = preRe.ReplaceAllString(text, "```\n$1\n```")
	text = inlineRe.ReplaceAllString(text, "`$1`")
	text = pillRe.ReplaceAllString(text, "$1")
	text = strongRe.ReplaceAllString(text, "**$1**")
	text = emRe.ReplaceAllString(text, "_${1}_")
	text = delRe.ReplaceAllString(text, "~~$1~~")
	text = anchorRe.ReplaceAllString(text, "[$2]($1)")
	text = headingRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := headingRe.FindStringSubmatch(match)
		level, _ := strconv.Atoi(parts[1])
		return strings.Repeat("#", level) + " " + parts[2]
	})
	text = quoteRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := brRe.ReplaceAllString(quoteRe.FindStringSubmatch(match)[1], "\n")
		inner = pRe.ReplaceAllString(inner, "$1\n")
		lines := strings.Split(strings.TrimSpace(inner), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n"
	})
	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		return listItems(match, func(int) string { return "- " })
	})
	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		return listItems(match, func(i int) string { return strconv.Itoa(i+1) + ". " })
	})
	text = pRe.ReplaceAllString(text, "$1\n\n")
	text = brRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func listItems(list string, marker func(int) string) string {
	items := liRe.FindAllStringSubmatch(list, -1)
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = marker(i) + strings.TrimSpace(item[1])
	}
	return strings.Join(lines, "\n") + "\n"
}

// stripReplyFallback removes the quoted "> <@user> text" lines that clients
// prepend to the plain body of a reply.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> <") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}
