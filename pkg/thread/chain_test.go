package thread

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_ResolvesNearestFirst(t *testing.T) {
	r := event("R", 1)
	p1 := event("P1", 2, rootTag("R"), replyTag("R"))
	p2 := event("P2", 3, rootTag("R"), replyTag("P1"))
	leaf := event("L", 4, rootTag("R"), replyTag("P2"))

	relays := newFakeRelays(r, p1)
	h := newHarness(t, relays)
	h.events.Put(p2)
	c := NewChainResolver(h.events, h.dedup, 0, 0, 0)

	got := c.Resolve(context.Background(), leaf)
	assert.Equal(t, []string{"P2", "P1", "R"}, ids(got))
	assert.LessOrEqual(t, relays.idCalls, 2, "root and parent are fetched in batches")
}

func TestChain_PositionalTagsFallBackToLastNonMention(t *testing.T) {
	r := event("R", 1)
	p := event("P", 2)
	leaf := event("L", 3, []string{"e", "R"}, []string{"e", "P"}, []string{"e", "M", "", "mention"})
	h := newHarness(t, newFakeRelays(r, p))
	c := NewChainResolver(h.events, h.dedup, 0, 0, 0)

	assert.Equal(t, []string{"P"}, ids(c.Resolve(context.Background(), leaf)))
}

func TestChain_CycleTerminates(t *testing.T) {
	a := event("A", 1, replyTag("B"))
	b := event("B", 2, replyTag("A"))
	h := newHarness(t, newFakeRelays(b))
	c := NewChainResolver(h.events, h.dedup, 0, 0, 0)

	assert.Equal(t, []string{"B"}, ids(c.Resolve(context.Background(), a)))
}

func TestChain_SelfReferenceTerminates(t *testing.T) {
	a := event("A", 1, replyTag("A"))
	h := newHarness(t, newFakeRelays())
	c := NewChainResolver(h.events, h.dedup, 0, 0, 0)

	assert.Empty(t, c.Resolve(context.Background(), a))
}

func TestChain_HopLimit(t *testing.T) {
	h := newHarness(t, newFakeRelays())
	for i := 0; i < 10; i++ {
		h.events.Put(event(fmt.Sprintf("n%d", i), int64(i), replyTag(fmt.Sprintf("n%d", i+1))))
	}
	leaf := event("leaf", 100, replyTag("n0"))
	c := NewChainResolver(h.events, h.dedup, 3, 0, 0)

	assert.Equal(t, []string{"n0", "n1", "n2"}, ids(c.Resolve(context.Background(), leaf)))
}

func TestChain_FetchFailureReturnsPartial(t *testing.T) {
	relays := newFakeRelays()
	relays.failIDs = true
	h := newHarness(t, relays)
	h.events.Put(event("P2", 3, replyTag("P1")))
	leaf := event("L", 4, replyTag("P2"))
	c := NewChainResolver(h.events, h.dedup, 0, 0, 0)

	assert.Equal(t, []string{"P2"}, ids(c.Resolve(context.Background(), leaf)))
	assert.Equal(t, 1, relays.idCalls)
}
