package model

// Channel is a discovered channel page on the listing site.
// Two channels are the same channel when their URLs are byte-identical.
type Channel struct {
	// Name is the display name with listing prefixes already stripped.
	Name string `json:"name"`

	// URL is the absolute channel page URL. It is the channel identity.
	URL string `json:"url"`

	// Index is the zero-based position in discovery order.
	Index int `json:"index"`
}

// Key returns the channel identity.
func (c Channel) Key() string {
	return c.URL
}
