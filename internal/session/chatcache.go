package session

import (
	"sort"
	"sync"
	"time"
)

// Chat is one conversation summary, built from live messages and history
// sync. This cache is the only chat storage; the protocol library keeps the
// cryptographic session, not the timeline.
type Chat struct {
	JID          string    `json:"jid"`
	Name         string    `json:"name,omitempty"`
	LastMessage  string    `json:"last_message,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Message is one cached message in API shape.
type Message struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat_jid"`
	SenderJID string    `json:"sender_jid,omitempty"`
	PushName  string    `json:"push_name,omitempty"`
	FromMe    bool      `json:"from_me"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	MediaID   string    `json:"media_id,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	Mimetype  string    `json:"mimetype,omitempty"`
}

type chatEntry struct {
	name string
	msgs []Message
	seen map[string]struct{}
}

// ChatCache is the per-session in-memory chat/message store. Each chat keeps
// at most capPerChat messages; older ones fall off the front.
type ChatCache struct {
	mu         sync.RWMutex
	chats      map[string]*chatEntry
	capPerChat int
}

func newChatCache(capPerChat int) *ChatCache {
	if capPerChat <= 0 {
		capPerChat = 200
	}
	return &ChatCache{
		chats:      make(map[string]*chatEntry),
		capPerChat: capPerChat,
	}
}

// Add inserts a message into its chat, creating the chat if needed. name is
// only applied when the chat has no name yet (push names must not clobber a
// proper group subject). Duplicate message IDs are ignored; history sync
// overlaps live delivery.
func (c *ChatCache) Add(msg Message, name string) {
	if msg.ChatJID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.chats[msg.ChatJID]
	if !ok {
		entry = &chatEntry{seen: make(map[string]struct{})}
		c.chats[msg.ChatJID] = entry
	}
	if entry.name == "" && name != "" {
		entry.name = name
	}

	if msg.ID != "" {
		if _, dup := entry.seen[msg.ID]; dup {
			return
		}
		entry.seen[msg.ID] = struct{}{}
	}

	entry.msgs = append(entry.msgs, msg)
	// History sync delivers older messages after live ones; keep the slice
	// in timestamp order.
	if n := len(entry.msgs); n > 1 && entry.msgs[n-2].Timestamp.After(msg.Timestamp) {
		sort.SliceStable(entry.msgs, func(i, j int) bool {
			return entry.msgs[i].Timestamp.Before(entry.msgs[j].Timestamp)
		})
	}
	if len(entry.msgs) > c.capPerChat {
		drop := entry.msgs[:len(entry.msgs)-c.capPerChat]
		for _, d := range drop {
			delete(entry.seen, d.ID)
		}
		entry.msgs = append([]Message(nil), entry.msgs[len(entry.msgs)-c.capPerChat:]...)
	}
}

// Rename force-sets a chat's display name, creating the chat if needed.
func (c *ChatCache) Rename(jid, name string) {
	if jid == "" || name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.chats[jid]
	if !ok {
		entry = &chatEntry{seen: make(map[string]struct{})}
		c.chats[jid] = entry
	}
	entry.name = name
}

// Chats returns conversation summaries, most recent activity first.
func (c *ChatCache) Chats() []Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Chat, 0, len(c.chats))
	for jid, entry := range c.chats {
		ch := Chat{JID: jid, Name: entry.name, MessageCount: len(entry.msgs)}
		if n := len(entry.msgs); n > 0 {
			last := entry.msgs[n-1]
			ch.LastActivity = last.Timestamp
			ch.LastMessage = last.Text
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].JID < out[j].JID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Messages returns cached messages. With a chat JID the result is that
// chat's timeline, oldest first, trimmed to the newest limit entries. With
// an empty JID it is the newest limit messages across all chats, newest
// first.
func (c *ChatCache) Messages(chatJID string, limit int) []Message {
	if limit <= 0 {
		limit = 50
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if chatJID != "" {
		entry, ok := c.chats[chatJID]
		if !ok {
			return []Message{}
		}
		msgs := entry.msgs
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		return append([]Message(nil), msgs...)
	}

	var all []Message
	for _, entry := range c.chats {
		all = append(all, entry.msgs...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []Message{}
	}
	return all
}

// ChatCount reports how many conversations are cached.
func (c *ChatCache) ChatCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chats)
}
