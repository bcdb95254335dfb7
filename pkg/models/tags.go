package models

import "github.com/nbd-wtf/go-nostr"

// Event kinds the cache cares about.
const (
	KindTextNote      = 1
	KindRepost        = 6
	KindGenericRepost = 16
)

const (
	MarkerRoot    = "root"
	MarkerReply   = "reply"
	MarkerMention = "mention"
)

// eRef is one relationship ("e") tag: referenced id and optional marker.
type eRef struct {
	id     string
	marker string
}

func eRefs(ev *nostr.Event) []eRef {
	var out []eRef
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		r := eRef{id: tag[1]}
		if len(tag) >= 4 {
			r.marker = tag[3]
		}
		out = append(out, r)
	}
	return out
}

// RootID returns the thread root an event declares: the first root-marked
// relationship tag, else the first relationship tag. Empty when the event
// references nothing.
func RootID(ev *nostr.Event) string {
	refs := eRefs(ev)
	for _, r := range refs {
		if r.marker == MarkerRoot && r.id != "" {
			return r.id
		}
	}
	for _, r := range refs {
		if r.id != "" {
			return r.id
		}
	}
	return ""
}

// ReplyParentID returns the direct parent of ev. A reply-marked tag wins;
// otherwise the last relationship tag not marked as a mention.
func ReplyParentID(ev *nostr.Event) string {
	refs := eRefs(ev)
	for _, r := range refs {
		if r.marker == MarkerReply {
			return r.id
		}
	}
	for i := len(refs) - 1; i >= 0; i-- {
		if refs[i].marker != MarkerMention {
			return refs[i].id
		}
	}
	return ""
}

// MarksRoot reports whether ev names rootID with the "root" marker.
func MarksRoot(ev *nostr.Event, rootID string) bool {
	for _, r := range eRefs(ev) {
		if r.id == rootID && r.marker == MarkerRoot {
			return true
		}
	}
	return false
}

// IsRepost reports whether kind carries an embedded event in its content.
func IsRepost(kind int) bool {
	return kind == KindRepost || kind == KindGenericRepost
}
