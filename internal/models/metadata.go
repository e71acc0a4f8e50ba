package models

type MetadataRequest struct {
	URL string `json:"url"`
}

// FormatOption is one selectable quality shown to the user.
type FormatOption struct {
	Quality string `json:"quality"`
	Format  string `json:"format"`
	Size    string `json:"size"`
}

type Metadata struct {
	Title     string         `json:"title"`
	Thumbnail string         `json:"thumbnail"`
	Duration  string         `json:"duration"`
	Views     string         `json:"views"`
	Channel   string         `json:"channel"`
	Formats   []FormatOption `json:"formats"`
}
