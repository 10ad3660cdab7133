package transcript

import "strings"

// Project directories are named after the absolute working directory with
// every "/" replaced by "-", which also yields the leading "-".
const encodedPrefix = "-"

// DecodeProjectDir turns an encoded directory name back into a path, e.g.
// "-home-matt-src-app" -> "/home/matt/src/app". Names without the prefix
// are returned unchanged. Dashes inside real directory names are ambiguous
// and decode as separators.
func DecodeProjectDir(name string) string {
	if !strings.HasPrefix(name, encodedPrefix) {
		return name
	}
	return "/" + strings.ReplaceAll(name[len(encodedPrefix):], "-", "/")
}

// EncodeProjectDir is the inverse of DecodeProjectDir for absolute paths.
func EncodeProjectDir(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}
