package assets

import (
	"regexp"
	"strings"
)

const (
	defaultFilename = "image.jpg"
	bucketHost      = "https://s3.amazonaws.com/a.storyblok.com"
	publicHost      = "https://a.storyblok.com"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// NormalizeFilename derives the dedup key of a source image URL: the raw last
// path segment without query string or fragment, unsafe characters replaced
// by "_", lowercased. Percent escapes are not decoded, so each escape keeps
// its hex digits in the key.
func NormalizeFilename(src string) string {
	raw, _, _ := strings.Cut(strings.TrimSpace(src), "?")
	raw, _, _ = strings.Cut(raw, "#")
	name := raw[strings.LastIndex(raw, "/")+1:]
	if name == "" {
		name = defaultFilename
	}
	return strings.ToLower(unsafeFilenameChars.ReplaceAllString(name, "_"))
}

// AssetKey is the lookup key of an existing library asset.
func AssetKey(filename string) string {
	name := filename
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// PublicURL rewrites internal bucket URLs to the public asset host.
func PublicURL(filename string) string {
	return strings.Replace(filename, bucketHost, publicHost, 1)
}
