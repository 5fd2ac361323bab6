package models

import "strings"

// PictureURLs derives public picture URLs for bots and components.
type PictureURLs struct {
	CDNURL        string
	GreenhouseURL string
}

func (p PictureURLs) Bot(picture string) string {
	return p.url("bot", "greenhouse-bots", picture)
}

func (p PictureURLs) Component(picture string) string {
	return p.url("component", "greenhouse-components", picture)
}

func (p PictureURLs) url(kind, bucket, picture string) string {
	if picture == "" {
		return strings.TrimRight(p.GreenhouseURL, "/") + "/images/" + kind + "-default.png"
	}
	return strings.TrimRight(p.CDNURL, "/") + "/" + bucket + "/" + picture
}
