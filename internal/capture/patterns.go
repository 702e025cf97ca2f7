package capture

import (
	"regexp"
	"strings"
	"sync"
)

// Match patterns use the browser extension form: literal text with `*`
// wildcards, e.g. "*://rd6.zhaopin.com/api/resume/detail*". Compiled
// regexps are cached per pattern.
var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

func compilePattern(pattern string) *regexp.Regexp {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re
	}

	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	re = regexp.MustCompile(b.String())

	patternMu.Lock()
	patternCache[pattern] = re
	patternMu.Unlock()
	return re
}

// MatchPattern reports whether url matches a single wildcard pattern.
func MatchPattern(pattern, url string) bool {
	return compilePattern(pattern).MatchString(url)
}

// MatchAny reports whether url matches any of the given patterns.
func MatchAny(patterns []string, url string) bool {
	for _, p := range patterns {
		if MatchPattern(p, url) {
			return true
		}
	}
	return false
}
