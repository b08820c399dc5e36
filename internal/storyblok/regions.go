package storyblok

import "strings"

// Hosts holds the API roots for one Storyblok region.
type Hosts struct {
	Management string
	Content    string
}

var regionHosts = map[string]Hosts{
	"eu": {Management: "https://mapi.storyblok.com/v1", Content: "https://api.storyblok.com/v2"},
	"us": {Management: "https://api-us.storyblok.com/v1", Content: "https://api-us.storyblok.com/v2"},
	"ca": {Management: "https://api-ca.storyblok.com/v1", Content: "https://api-ca.storyblok.com/v2"},
	"ap": {Management: "https://api-ap.storyblok.com/v1", Content: "https://api-ap.storyblok.com/v2"},
	"cn": {Management: "https://app.storyblokchina.cn/v1", Content: "https://app.storyblokchina.cn/v2"},
}

// RegionHosts resolves a region code, falling back to eu.
func RegionHosts(region string) Hosts {
	if h, ok := regionHosts[strings.ToLower(strings.TrimSpace(region))]; ok {
		return h
	}
	return regionHosts["eu"]
}
