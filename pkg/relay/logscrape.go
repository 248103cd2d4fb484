// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"regexp"
)

// LogScrapeRule turns server log lines matching Pattern into a relay
// message. Template is expanded with regexp.Expand syntax ($1, ${name}).
type LogScrapeRule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Template string `yaml:"template" json:"template"`
}

type scrapeRule struct {
	re       *regexp.Regexp
	template string
}

// LogScrapeFilter matches log lines against an ordered rule list.
type LogScrapeFilter struct {
	rules []scrapeRule
}

// NewLogScrapeFilter compiles the rules, keeping their order.
func NewLogScrapeFilter(rules []LogScrapeRule) (*LogScrapeFilter, error) {
	f := &LogScrapeFilter{rules: make([]scrapeRule, 0, len(rules))}
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, rule.Pattern, err)
		}
		f.rules = append(f.rules, scrapeRule{re: re, template: rule.Template})
	}
	return f, nil
}

// Match returns the message for the first rule matching line. ok is false
// when no rule matches or the first matching rule expands to nothing; later
// rules are never consulted once one has matched.
func (f *LogScrapeFilter) Match(line string) (msg string, ok bool) {
	if f == nil {
		return "", false
	}
	for _, rule := range f.rules {
		idx := rule.re.FindStringSubmatchIndex(line)
		if idx == nil {
			continue
		}
		msg = string(rule.re.ExpandString(nil, rule.template, line, idx))
		return msg, msg != ""
	}
	return "", false
}
