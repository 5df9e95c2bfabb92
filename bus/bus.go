// bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path: a string or an int.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic from tokens. It panics on tokens that are neither string
// nor int, since those cannot index the trie.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int:
		default:
			panic("bus: invalid topic token")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int { return len(t) }

// At returns token i, or nil if out of range.
func (t Topic) At(i int) Token {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// Append returns a new topic with tokens added; t is not modified.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, tokens...)
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

// CanReply reports whether the sender is waiting for a reply.
func (m *Message) CanReply() bool { return m != nil && len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok Token, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[Token]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.RWMutex
	root   *node
	qLen   int
	single Token // single-level wildcard
	multi  Token // multi-level wildcard (last token only)
}

// NewBus creates a bus with the given subscription queue length. Optional
// wildcard tokens may be passed as single, multi; they default to "+", "#".
func NewBus(queueLen int, wildcards ...string) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	b := &Bus{root: &node{}, qLen: queueLen, single: "+", multi: "#"}
	if len(wildcards) > 0 && wildcards[0] != "" {
		b.single = wildcards[0]
	}
	if len(wildcards) > 1 && wildcards[1] != "" {
		b.multi = wildcards[1]
	}
	return b
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	// Deliver matching retained messages.
	b.walkRetained(b.root, sub.topic, func(m *Message) { deliver(sub, m) })
}

// walkRetained visits retained messages under n whose topics match pattern.
func (b *Bus) walkRetained(n *node, pattern Topic, fn func(*Message)) {
	if n == nil {
		return
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	head := pattern[0]
	switch {
	case head == b.multi:
		var all func(*node)
		all = func(x *node) {
			if x.retained != nil {
				fn(x.retained)
			}
			for _, c := range x.children {
				all(c)
			}
		}
		all(n)
	case head == b.single:
		for tok, c := range n.children {
			if tok == b.single || tok == b.multi {
				continue
			}
			b.walkRetained(c, pattern[1:], fn)
		}
	default:
		b.walkRetained(n.children[head], pattern[1:], fn)
	}
}

// collect gathers subscriptions whose patterns match topic.
func (b *Bus) collect(n *node, topic Topic, out []*Subscription) []*Subscription {
	if n == nil {
		return out
	}
	if m := n.children[b.multi]; m != nil {
		out = append(out, m.subs...)
	}
	if len(topic) == 0 {
		return append(out, n.subs...)
	}
	out = b.collect(n.children[topic[0]], topic[1:], out)
	if topic[0] != b.single {
		out = b.collect(n.children[b.single], topic[1:], out)
	}
	return out
}

// Publish delivers a message to all matching subscribers.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.collect(b.root, msg.Topic, nil) {
		deliver(sub, msg)
	}

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		n = n.child(tok, true)
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// deliver never blocks: when the queue is full the oldest message is dropped.
func deliver(sub *Subscription, msg *Message) {
	for {
		select {
		case sub.ch <- msg:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		c := n.child(tok, false)
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.topic[i]
		c := parent.children[key]
		if len(c.subs) != 0 || len(c.children) != 0 || c.retained != nil {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

var ErrNoReply = errors.New("bus: no reply")

var replySeq uint32

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// Reply publishes payload to the request's reply topic.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}

// Request publishes msg with a private reply topic and returns the reply
// subscription. The caller owns it and must Unsubscribe.
func (c *Connection) Request(msg *Message) *Subscription {
	id := int(atomic.AddUint32(&replySeq, 1))
	msg.ReplyTo = T("_reply", c.id, id)
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg with a private reply topic and waits for the
// first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrNoReply
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
