// Package cli holds helpers shared by the daybook commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExpandPattern resolves a tag selector against the tags in use. A
// selector carrying glob metacharacters uses filepath.Match semantics;
// anything else must name an existing tag exactly.
func ExpandPattern(selector string, known []string) ([]string, error) {
	// filepath.Match reports pattern syntax errors regardless of the
	// candidate, so one probe validates the selector for good.
	if _, err := filepath.Match(selector, ""); err != nil {
		return nil, fmt.Errorf("cli: bad tag pattern %q: %w", selector, err)
	}

	if !strings.ContainsAny(selector, "*?[") {
		for _, tag := range known {
			if tag == selector {
				return []string{selector}, nil
			}
		}
		return nil, fmt.Errorf("cli: no entries tagged %q", selector)
	}

	var matched []string
	for _, tag := range known {
		if ok, _ := filepath.Match(selector, tag); ok {
			matched = append(matched, tag)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("cli: no tags match %q", selector)
	}
	return matched, nil
}

// ExpandPatterns resolves several selectors at once, deduplicating
// while keeping first-match order.
func ExpandPatterns(selectors, known []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, sel := range selectors {
		tags, err := ExpandPattern(sel, known)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out, nil
}
