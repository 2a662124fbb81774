package instagram

import (
	"strings"
	"time"
)

// Node __typename values on the owner timeline.
const (
	TypeImage   = "GraphImage"
	TypeSidecar = "GraphSidecar"
	TypeVideo   = "GraphVideo"
)

// ProfileResponse is the body of the web profile info endpoint.
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Status          string `json:"status"`
	Data            struct {
		User *User `json:"user"`
	} `json:"data"`
}

// MediaResponse is the body of a timeline page from /graphql/query/.
type MediaResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Status          string `json:"status"`
	Data            struct {
		User struct {
			Timeline Timeline `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

type User struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	IsPrivate bool     `json:"is_private"`
	Timeline  Timeline `json:"edge_owner_to_timeline_media"`
}

type Timeline struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

type Edge struct {
	Node Node `json:"node"`
}

// Node is a single timeline media item.
type Node struct {
	ID         string `json:"id"`
	Typename   string `json:"__typename"`
	Shortcode  string `json:"shortcode"`
	DisplayURL string `json:"display_url"`
	IsVideo    bool   `json:"is_video"`
	TakenAt    int64  `json:"taken_at_timestamp"`

	Caption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`

	Children struct {
		Edges []struct {
			Node struct {
				DisplayURL string `json:"display_url"`
				IsVideo    bool   `json:"is_video"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

// CaptionText joins every caption edge.
func (n *Node) CaptionText() string {
	parts := make([]string, 0, len(n.Caption.Edges))
	for _, e := range n.Caption.Edges {
		parts = append(parts, e.Node.Text)
	}
	return strings.Join(parts, "\n")
}

func (n *Node) Video() bool {
	return n.IsVideo || n.Typename == TypeVideo
}

// ImageURLs lists still images: sidecar children in order, otherwise the
// display URL. Videos and video children contribute nothing.
func (n *Node) ImageURLs(max int) []string {
	if n.Video() {
		return nil
	}
	var urls []string
	if n.Typename == TypeSidecar && len(n.Children.Edges) > 0 {
		for _, c := range n.Children.Edges {
			if !c.Node.IsVideo && c.Node.DisplayURL != "" {
				urls = append(urls, c.Node.DisplayURL)
			}
		}
	} else if n.DisplayURL != "" {
		urls = append(urls, n.DisplayURL)
	}
	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	return urls
}

// Posted returns the post time, or nil when Instagram omitted it.
func (n *Node) Posted() *time.Time {
	if n.TakenAt <= 0 {
		return nil
	}
	t := time.Unix(n.TakenAt, 0).UTC()
	return &t
}
