package conversation

import "time"

// ActorType says who produced a message in a thread.
type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAI     ActorType = "ai"
	ActorSystem ActorType = "system"
)

// Message is one entry in a thread's conversation context. Seq orders
// messages within a thread and is assigned by the store on append.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Seq       int       `json:"seq"`
	Actor     ActorType `json:"actor"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is the conversation context for one issue or pull request,
// keyed by "owner/repo#number". Messages are ordered by Seq and only
// ever appended to.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}
