package domain

import "time"

// DiscussionMessage is a post or reply in a project's team discussion.
type DiscussionMessage struct {
	ID         string         `json:"id"`
	TeamID     string         `json:"team_id"`
	ProjectID  string         `json:"project_id"`
	ParentID   *string        `json:"parent_id,omitempty"`
	AuthorID   string         `json:"author_id"`
	AuthorName string         `json:"author_name"`
	Body       string         `json:"body"`
	HTML       string         `json:"html"`
	Reactions  map[string]int `json:"reactions"`
	CreatedAt  time.Time      `json:"created_at"`
}
