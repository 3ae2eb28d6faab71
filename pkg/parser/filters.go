package parser

import (
	"net/url"
	"strings"
)

// PathFilter excludes URLs whose path contains any of the given fragments.
type PathFilter struct {
	excludePaths []string
	name         string
}

func NewPathFilter(name string, excludePaths []string) *PathFilter {
	return &PathFilter{
		name:         name,
		excludePaths: excludePaths,
	}
}

func (f *PathFilter) ShouldExclude(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, excludePath := range f.excludePaths {
		if excludePath == "" {
			continue
		}
		if strings.Contains(path, strings.ToLower(excludePath)) {
			return true
		}
	}
	return false
}

func (f *PathFilter) Name() string {
	return f.name
}

// ExtensionFilter excludes URLs by file extension. Extensions may be given
// with or without the leading dot.
type ExtensionFilter struct {
	excludeExts []string
	name        string
}

func NewExtensionFilter(name string, excludeExts []string) *ExtensionFilter {
	exts := make([]string, 0, len(excludeExts))
	for _, ext := range excludeExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &ExtensionFilter{
		name:        name,
		excludeExts: exts,
	}
}

func (f *ExtensionFilter) ShouldExclude(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, ext := range f.excludeExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (f *ExtensionFilter) Name() string {
	return f.name
}

// BuildFilters turns exclusion settings into filters, skipping empty lists.
func BuildFilters(excludePaths, excludeExtensions []string) []Filter {
	var filters []Filter
	if len(excludePaths) > 0 {
		filters = append(filters, NewPathFilter("exclude_paths", excludePaths))
	}
	if len(excludeExtensions) > 0 {
		filters = append(filters, NewExtensionFilter("exclude_extensions", excludeExtensions))
	}
	return filters
}
