package imagediff

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultWidth   = 800
	defaultQuality = 80
)

var resizeSegment = regexp.MustCompile(`/m/\d+x\d+`)

// Optimization configures MapImageURL. Template, when set, wins and may use
// the {url}, {width} and {quality} placeholders.
type Optimization struct {
	Width    int
	Quality  int
	Template string
}

// Mapper binds opt into a MapFunc.
func (opt Optimization) Mapper() MapFunc {
	return func(src string) string { return MapImageURL(src, opt) }
}

// MapImageURL rewrites Storyblok asset URLs to a resized webp rendition.
// Other URLs are returned unchanged.
func MapImageURL(src string, opt Optimization) string {
	width := opt.Width
	if width <= 0 {
		width = defaultWidth
	}
	quality := opt.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	if opt.Template != "" {
		return strings.NewReplacer(
			"{url}", src,
			"{width}", strconv.Itoa(width),
			"{quality}", strconv.Itoa(quality),
		).Replace(opt.Template)
	}
	if !strings.Contains(src, "storyblok") {
		return src
	}
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return src
	}
	origin := u.Scheme + "://" + u.Host
	if strings.Contains(u.Path, "/m/") {
		return origin + resizeSegment.ReplaceAllString(u.Path, fmt.Sprintf("/m/%dx0", width))
	}
	return fmt.Sprintf("%s%s/m/%dx0/filters:quality(%d):format(webp)", origin, u.Path, width, quality)
}
