package imagediff

import "testing"

func TestMapImageURL(t *testing.T) {
	cases := []struct {
		name string
		src  string
		opt  Optimization
		want string
	}{
		{
			name: "non storyblok untouched",
			src:  "https://cdn.example.com/a.jpg",
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "append optimization with defaults",
			src:  "https://a.storyblok.com/f/42/1000x800/abc/shirt.png",
			want: "https://a.storyblok.com/f/42/1000x800/abc/shirt.png/m/800x0/filters:quality(80):format(webp)",
		},
		{
			name: "custom width and quality",
			src:  "https://a.storyblok.com/f/42/shirt.png",
			opt:  Optimization{Width: 400, Quality: 60},
			want: "https://a.storyblok.com/f/42/shirt.png/m/400x0/filters:quality(60):format(webp)",
		},
		{
			name: "existing resize rewritten",
			src:  "https://a.storyblok.com/f/42/shirt.png/m/1200x900",
			opt:  Optimization{Width: 640},
			want: "https://a.storyblok.com/f/42/shirt.png/m/640x0",
		},
		{
			name: "template wins",
			src:  "https://a.storyblok.com/f/42/shirt.png",
			opt:  Optimization{Template: "https://img.example.com/?src={url}&w={width}", Width: 300},
			want: "https://img.example.com/?src=https://a.storyblok.com/f/42/shirt.png&w=300",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MapImageURL(tc.src, tc.opt); got != tc.want {
				t.Fatalf("MapImageURL(%q) = %q, want %q", tc.src, got, tc.want)
			}
		})
	}
	if got := (Optimization{Width: 100}).Mapper()("https://a.storyblok.com/x.png"); got != "https://a.storyblok.com/x.png/m/100x0/filters:quality(80):format(webp)" {
		t.Fatalf("mapper mismatch: %s", got)
	}
}
