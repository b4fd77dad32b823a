package instagram

// PostKind is the shape of a post.
type PostKind string

const (
	KindImage    PostKind = "image"
	KindVideo    PostKind = "video"
	KindCarousel PostKind = "carousel"
)

// MediaType is the type of a single downloadable item.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaItem is one downloadable file of a post.
type MediaItem struct {
	Type MediaType
	URL  string
}

// Post is the metadata of a post needed to repost it.
type Post struct {
	Shortcode string
	Author    string
	Caption   string
	Kind      PostKind
	Items     []MediaItem
}

// Session carries the cookies of a logged-in web session.
type Session struct {
	SessionID string
	CSRFToken string
	DSUserID  string
}

// Valid reports whether the session can authenticate requests.
func (s Session) Valid() bool { return s.SessionID != "" }

// Wire shapes of the ?__a=1&__d=dis post endpoint.
type postResponse struct {
	Items []postItem `json:"items"`
	// Older responses nest the item under graphql.shortcode_media.
	Graphql *struct {
		ShortcodeMedia *graphMedia `json:"shortcode_media"`
	} `json:"graphql"`
	RequiresToLogin bool `json:"requires_to_login"`
}

type postItem struct {
	Code      string `json:"code"`
	MediaType int    `json:"media_type"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	ImageVersions2 struct {
		Candidates []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
	CarouselMedia []postItem `json:"carousel_media"`
}

type graphMedia struct {
	Shortcode  string `json:"shortcode"`
	DisplayURL string `json:"display_url"`
	IsVideo    bool   `json:"is_video"`
	VideoURL   string `json:"video_url"`
	Owner      struct {
		Username string `json:"username"`
	} `json:"owner"`
	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	EdgeSidecarToChildren *struct {
		Edges []struct {
			Node graphMedia `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

const (
	mediaTypeImage    = 1
	mediaTypeVideo    = 2
	mediaTypeCarousel = 8
)

func itemMedia(it postItem) (MediaItem, bool) {
	if it.MediaType == mediaTypeVideo || len(it.VideoVersions) > 0 {
		if len(it.VideoVersions) > 0 && it.VideoVersions[0].URL != "" {
			return MediaItem{Type: MediaVideo, URL: it.VideoVersions[0].URL}, true
		}
	}
	if len(it.ImageVersions2.Candidates) > 0 && it.ImageVersions2.Candidates[0].URL != "" {
		return MediaItem{Type: MediaImage, URL: it.ImageVersions2.Candidates[0].URL}, true
	}
	return MediaItem{}, false
}

func (r postResponse) toPost(shortcode string) (*Post, error) {
	if len(r.Items) > 0 {
		it := r.Items[0]
		p := &Post{Shortcode: shortcode, Author: it.User.Username}
		if it.Caption != nil {
			p.Caption = it.Caption.Text
		}
		if it.MediaType == mediaTypeCarousel {
			p.Kind = KindCarousel
			for _, child := range it.CarouselMedia {
				if m, ok := itemMedia(child); ok {
					p.Items = append(p.Items, m)
				}
			}
		} else if m, ok := itemMedia(it); ok {
			p.Items = []MediaItem{m}
			p.Kind = KindImage
			if m.Type == MediaVideo {
				p.Kind = KindVideo
			}
		}
		if len(p.Items) == 0 {
			return nil, newError(ErrorTypeParsing, 0, "post %s has no downloadable media", shortcode)
		}
		return p, nil
	}
	if r.Graphql != nil && r.Graphql.ShortcodeMedia != nil {
		return r.Graphql.ShortcodeMedia.toPost(shortcode)
	}
	return nil, newError(ErrorTypeParsing, 0, "post %s: empty response", shortcode)
}

func (g graphMedia) item() MediaItem {
	if g.IsVideo && g.VideoURL != "" {
		return MediaItem{Type: MediaVideo, URL: g.VideoURL}
	}
	return MediaItem{Type: MediaImage, URL: g.DisplayURL}
}

func (g graphMedia) toPost(shortcode string) (*Post, error) {
	p := &Post{Shortcode: shortcode, Author: g.Owner.Username}
	if edges := g.EdgeMediaToCaption.Edges; len(edges) > 0 {
		p.Caption = edges[0].Node.Text
	}
	if g.EdgeSidecarToChildren != nil && len(g.EdgeSidecarToChildren.Edges) > 0 {
		p.Kind = KindCarousel
		for _, e := range g.EdgeSidecarToChildren.Edges {
			if it := e.Node.item(); it.URL != "" {
				p.Items = append(p.Items, it)
			}
		}
	} else if it := g.item(); it.URL != "" {
		p.Items = []MediaItem{it}
		p.Kind = KindImage
		if it.Type == MediaVideo {
			p.Kind = KindVideo
		}
	}
	if len(p.Items) == 0 {
		return nil, newError(ErrorTypeParsing, 0, "post %s has no downloadable media", shortcode)
	}
	return p, nil
}
