package channels

import (
	"context"
	"sync"

	"github.com/agentif/agentif/pkg/models"
)

// StreamTestChannel records every operation it receives. Tests assert on the
// counters to verify streaming and sentinel-suppression behavior.
type StreamTestChannel struct {
	mu sync.Mutex

	ID       string
	Group    bool
	Private  bool
	User     *User
	SourceID string

	Started  int
	Finished int
	Closed   int
	Deltas   []string
	Sent     []models.Message
}

func (c *StreamTestChannel) StartStreaming(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Started++
	return nil
}

func (c *StreamTestChannel) AppendToStream(_ context.Context, delta string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deltas = append(c.Deltas, delta)
	return nil
}

func (c *StreamTestChannel) FinishStreaming(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Finished++
	return nil
}

func (c *StreamTestChannel) SendMessage(_ context.Context, msg models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, msg)
	return nil
}

func (c *StreamTestChannel) CloseChannel(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed++
	return nil
}

func (c *StreamTestChannel) ChannelID() string      { return c.ID }
func (c *StreamTestChannel) IsGroup() bool          { return c.Group }
func (c *StreamTestChannel) IsPrivate() bool        { return c.Private }
func (c *StreamTestChannel) CurrentUser() *User     { return c.User }
func (c *StreamTestChannel) SourceMessageID() string { return c.SourceID }

// Snapshot returns the counters under the lock.
func (c *StreamTestChannel) Snapshot() (started, finished, closed int, deltas []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Started, c.Finished, c.Closed, append([]string(nil), c.Deltas...)
}
