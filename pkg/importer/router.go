package importer

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	archiveExtension = regexp.MustCompile(`\.(gz|csv|zip)$`)
	yearMonthSuffix  = regexp.MustCompile(`-(\d{4})-(\d{2})$`)
	yearSuffix       = regexp.MustCompile(`-(\d{4})$`)
	timestampPrefix  = regexp.MustCompile(`^(\d{4})-(\d{2})-\d{2}`)
)

// FileHints is the year and month a data filename advertises, when it does.
type FileHints struct {
	Year  string
	Month string
}

// ExtractFileHints pulls a -YYYY-MM or -YYYY suffix out of a data filename,
// stripping any stack of .csv/.gz/.zip extensions first.
func ExtractFileHints(path string) FileHints {
	name := strings.ToLower(filepath.Base(path))
	for {
		stripped := archiveExtension.ReplaceAllString(name, "")
		if stripped == name {
			break
		}
		name = stripped
	}

	if m := yearMonthSuffix.FindStringSubmatch(name); m != nil {
		return FileHints{Year: m[1], Month: m[2]}
	}
	if m := yearSuffix.FindStringSubmatch(name); m != nil {
		return FileHints{Year: m[1]}
	}
	return FileHints{}
}

// Router decides the target index for each document.
type Router struct {
	base        string
	partitioned bool
}

// NewRouter routes into date-partitioned indices below base, or into base
// itself when partitioning is off.
func NewRouter(base string, partitioned bool) *Router {
	return &Router{base: base, partitioned: partitioned}
}

// Route names the index for one document. Filename hints win over the
// document timestamp; a timestamp contributes only its year. Empty means
// unroutable.
func (r *Router) Route(hints FileHints, timestamp string) string {
	if !r.partitioned {
		return r.base
	}

	if hints.Year != "" && hints.Month != "" {
		return r.base + "-" + hints.Year + "-" + hints.Month
	}
	if hints.Year != "" {
		return r.base + "-" + hints.Year
	}
	if m := timestampPrefix.FindStringSubmatch(timestamp); m != nil {
		return r.base + "-" + m[1]
	}
	return ""
}

// Pattern covers every index this router can target.
func (r *Router) Pattern() string {
	if !r.partitioned {
		return r.base
	}
	return r.base + "-*"
}
