// Package bus is the in-process message fabric the services talk over. It is
// a topic trie with MQTT-style semantics: retained messages, single-level "+"
// and multi-level "#" wildcards, and request/reply on top of plain pub/sub.
// Delivery never blocks a publisher; a full subscriber queue drops its oldest
// message first.
package bus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when waiting on a subscription whose connection has
// been torn down.
var ErrClosed = errors.New("bus: subscription closed")

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works as a
// token; strings and small ints are the usual choices. The strings "+" and
// "#" are wildcards when they appear in a subscription pattern.
type Token any

// Wildcard tokens, valid in subscription patterns only.
const (
	WildcardOne = "+" // matches exactly one token
	WildcardAny = "#" // matches the rest of the topic, including nothing
)

// T builds a Topic from token values, validating each one. Non-comparable
// values cannot be routed and panic here rather than corrupting the trie on
// first use.
func T(toks ...any) Topic {
	t := make(Topic, len(toks))
	for i, v := range toks {
		_ = map[Token]struct{}{v: {}}
		t[i] = v
	}
	return t
}

// Topic is a sequence of tokens, most significant first.
type Topic []Token

// String renders the topic with "/" separators, for logs and the console.
func (t Topic) String() string {
	var b strings.Builder
	for i, tok := range t {
		if i > 0 {
			b.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// NewMessage builds a message for this bus.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	pattern Topic
	ch      chan *Message
	conn    *Connection
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// push enqueues without ever blocking the publisher: when the queue is full
// the oldest queued message is dropped and the send retried.
func (s *Subscription) push(msg *Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

// node carries both subscription patterns and retained messages. Wildcard
// tokens live in the trie as ordinary children; retained messages are only
// ever stored along concrete paths.
type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok Token) (*node, bool) {
	if n.children == nil {
		return nil, false
	}
	c, ok := n.children[tok]
	return c, ok
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// NewBus creates a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// addSubscription inserts a pattern into the trie and replays any retained
// messages it matches.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.pattern {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	b.replayRetained(b.root, sub.pattern, sub)
}

// replayRetained walks the concrete paths matched by pattern and pushes every
// retained message found.
func (b *Bus) replayRetained(n *node, pattern Topic, sub *Subscription) {
	if len(pattern) == 0 {
		if n.retained != nil {
			sub.push(n.retained)
		}
		return
	}
	switch pattern[0] {
	case WildcardAny:
		b.replayAll(n, sub)
	case WildcardOne:
		for _, c := range n.children {
			b.replayRetained(c, pattern[1:], sub)
		}
	default:
		if c, ok := n.child(pattern[0]); ok {
			b.replayRetained(c, pattern[1:], sub)
		}
	}
}

// replayAll pushes every retained message at and below n.
func (b *Bus) replayAll(n *node, sub *Subscription) {
	if n.retained != nil {
		sub.push(n.retained)
	}
	for _, c := range n.children {
		b.replayAll(c, sub)
	}
}

// Publish delivers a message to every matching subscription and stores or
// clears the retained copy. A nil payload on a retained publish clears the
// retained message for that topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deliver(b.root, msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// deliver recursively matches the remaining topic tokens against the trie.
// "#" matches the rest of the topic including the empty remainder, so a
// subscription to a/# also sees messages published to a itself.
func (b *Bus) deliver(n *node, toks Topic, msg *Message) {
	if h, ok := n.child(WildcardAny); ok {
		for _, sub := range h.subs {
			sub.push(msg)
		}
	}
	if len(toks) == 0 {
		for _, sub := range n.subs {
			sub.push(msg)
		}
		return
	}
	if c, ok := n.child(toks[0]); ok {
		b.deliver(c, toks[1:], msg)
	}
	if p, ok := n.child(WildcardOne); ok {
		b.deliver(p, toks[1:], msg)
	}
}

// unsubscribe removes a pattern from the trie and prunes emptied nodes.
func (b *Bus) unsubscribe(pattern Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range pattern {
		child, ok := n.child(t)
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	for i := len(pattern) - 1; i >= 0; i-- {
		parent := stack[i]
		key := pattern[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection is one service's handle on the bus. It owns its subscriptions
// and tears them all down on Disconnect.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
	seq  atomic.Uint32
}

// NewConnection creates a connection bound to this bus. The id namespaces
// reply topics and should be unique per service.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

// NewMessage builds a message for this connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a pattern owned by this connection. Retained messages
// matching the pattern are queued immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.pattern, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.pattern, sub)
		close(sub.ch)
	}
}

// replyTopic returns a reply inbox unique to this connection and request.
func (c *Connection) replyTopic() Topic {
	n := c.seq.Add(1)
	return Topic{"reply", c.id, strconv.FormatUint(uint64(n), 10)}
}

// Request publishes msg with a fresh ReplyTo inbox and returns the
// subscription on which replies arrive. The caller unsubscribes when done.
func (c *Connection) Request(msg *Message) *Subscription {
	if len(msg.ReplyTo) == 0 {
		msg.ReplyTo = c.replyTopic()
	}
	sub := c.Subscribe(msg.ReplyTo)
	c.bus.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply publishes a response to the request's ReplyTo inbox. Requests that
// carry no ReplyTo are fire-and-forget and the reply is dropped.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.bus.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
