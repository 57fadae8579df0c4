package infra

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/embuild/embuild/internal/domain"
)

// cacheLine matches entries like CMAKE_CXX_FLAGS_DEBUG:STRING=-g.
// Groups are name, type, value.
var cacheLine = regexp.MustCompile(`^([^#/:=]+):([^:=]+)=(.*)$`)

// quotedValue captures a value wrapped in matching double quotes, matching
// single quotes, or neither.
var quotedValue = regexp.MustCompile(`^"(.*)"$|^'(.*)'$|^(.*)$`)

// CMakeCache implements domain.CacheReader over CMakeCache.txt files.
type CMakeCache struct{}

// NewCMakeCache creates a cache reader.
func NewCMakeCache() domain.CacheReader {
	return &CMakeCache{}
}

// Parse reads the cache file at path into a fresh snapshot. A missing file
// yields an empty snapshot; lines that do not match the NAME:TYPE=VALUE
// shape (comments, blanks, malformed) are silently ignored.
func (c *CMakeCache) Parse(path string) (domain.CacheSnapshot, error) {
	snapshot := domain.CacheSnapshot{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := cacheLine.FindStringSubmatch(scanner.Text()); m != nil {
			snapshot[m[1]] = domain.CacheEntry{Type: m[2], Value: m[3]}
		}
	}
	return snapshot, scanner.Err()
}

// WouldChange reports whether the proposed KEY=VALUE entries would alter
// the cache at path. A missing cache always changes; with no proposed
// entries an existing cache never changes. The check short-circuits on the
// first differing entry.
func (c *CMakeCache) WouldChange(path string, entries []string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	snapshot, err := c.Parse(path)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		key, value, _ := strings.Cut(entry, "=")
		current, ok := snapshot.Get(key)
		if !ok || StripQuotes(value) != current {
			return true, nil
		}
	}
	return false, nil
}

// StripQuotes removes matching single or double quotes the way CMake does
// when parsing cache entries, then trims trailing whitespace. It is
// idempotent: de-quoting an already de-quoted value returns it unchanged.
func StripQuotes(value string) string {
	idx := quotedValue.FindStringSubmatchIndex(value)
	if idx != nil {
		for i := 1; i <= 3; i++ {
			if idx[2*i] >= 0 {
				return strings.TrimRight(value[idx[2*i]:idx[2*i+1]], " \t\r\n\v\f")
			}
		}
	}
	return strings.TrimRight(value, " \t\r\n\v\f")
}
