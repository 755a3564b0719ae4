package mesh

import (
	"sort"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSuchLink       = errors.New("no such link")
	ErrGlare            = errors.New("offer from non-offerer")
	ErrUnexpectedAnswer = errors.New("answer without pending offer")
)

// Table is the server's view of every link in every room.
// It is not safe for concurrent use; the orchestrator loop owns it.
type Table struct {
	links map[PairKey]*Link
}

func NewTable() *Table {
	return &Table{links: make(map[PairKey]*Link)}
}

// Open creates the links between a newcomer and each existing member.
// The existing member is the designated offerer of both directions.
func (t *Table) Open(room domain.RoomID, newcomer domain.UserID, existing []domain.UserID) []PairKey {
	opened := make([]PairKey, 0, 2*len(existing))
	for _, other := range existing {
		if other == newcomer {
			continue
		}
		for _, key := range []PairKey{
			{Room: room, Local: other, Remote: newcomer},
			{Room: room, Local: newcomer, Remote: other},
		} {
			if l, ok := t.links[key]; ok && l.State != Closed {
				continue
			}
			t.links[key] = NewLink(key, other)
			opened = append(opened, key)
		}
	}
	if len(opened) > 0 {
		log.Debug().Str("module", "mesh").Str("room", string(room)).Str("newcomer", string(newcomer)).Int("links", len(opened)).Msg("opened links")
	}
	return opened
}

func (t *Table) Get(key PairKey) (*Link, bool) {
	l, ok := t.links[key]
	return l, ok
}

func (t *Table) live(key PairKey) (*Link, *Link, error) {
	l, ok := t.links[key]
	if !ok || l.State == Closed {
		return nil, nil, errors.Wrap(ErrNoSuchLink, key.String())
	}
	r, ok := t.links[key.Reverse()]
	if !ok || r.State == Closed {
		return nil, nil, errors.Wrap(ErrNoSuchLink, key.Reverse().String())
	}
	return l, r, nil
}

// Offer records an offer sent along key (Local offers to Remote).
func (t *Table) Offer(key PairKey) error {
	l, r, err := t.live(key)
	if err != nil {
		return err
	}
	if l.State == Idle && l.Offerer != key.Local {
		return errors.Wrap(ErrGlare, key.String())
	}
	// Both sides offering at once: the designated offerer wins, the other side rolls back.
	if r.State == OfferSent {
		if key.Local != l.Offerer {
			return errors.Wrap(ErrGlare, key.String())
		}
		_ = r.Rollback()
		_ = l.Rollback()
		log.Debug().Str("module", "mesh").Str("link", key.String()).Msg("offerer superseded pending offer")
	}
	if !l.State.CanTransition(OfferSent) || !r.State.CanTransition(OfferReceived) {
		return errors.Wrapf(ErrIllegalTransition, "%s: offer in %s", key, l.State)
	}
	_ = l.Transition(OfferSent)
	_ = r.Transition(OfferReceived)
	return nil
}

// Answer records an answer sent along key, replying to the offer Remote made.
func (t *Table) Answer(key PairKey) error {
	l, r, err := t.live(key)
	if err != nil {
		return err
	}
	if l.State != OfferReceived || r.State != OfferSent {
		return errors.Wrapf(ErrUnexpectedAnswer, "%s: %s/%s", key, l.State, r.State)
	}
	for _, link := range []*Link{l, r} {
		_ = link.Transition(AnswerExchanged)
		if link.WasConnected() {
			_ = link.Transition(Connected)
		}
	}
	return nil
}

// Candidate checks that trickled candidates along key have a live link to land on.
func (t *Table) Candidate(key PairKey) error {
	_, _, err := t.live(key)
	return err
}

// Report applies a media state reported by Local about its link to Remote.
// Closed tears down both directions.
func (t *Table) Report(key PairKey, state LinkState) error {
	l, _, err := t.live(key)
	if err != nil {
		return err
	}
	switch state {
	case Closed:
		t.closePair(key)
		return nil
	case Connected, Reconnecting:
		return l.Transition(state)
	default:
		return errors.Wrapf(ErrIllegalTransition, "%s: report %s", key, state)
	}
}

func (t *Table) closePair(key PairKey) {
	for _, k := range []PairKey{key, key.Reverse()} {
		if l, ok := t.links[k]; ok {
			_ = l.Transition(Closed)
			delete(t.links, k)
		}
	}
}

// CloseMember removes every link touching member in room and returns the closed keys.
func (t *Table) CloseMember(room domain.RoomID, member domain.UserID) []PairKey {
	var closed []PairKey
	for key := range t.links {
		if key.Room == room && (key.Local == member || key.Remote == member) {
			closed = append(closed, key)
		}
	}
	for _, key := range closed {
		t.links[key].State = Closed
		delete(t.links, key)
	}
	return sortKeys(closed)
}

func (t *Table) CloseRoom(room domain.RoomID) []PairKey {
	var closed []PairKey
	for key := range t.links {
		if key.Room == room {
			closed = append(closed, key)
		}
	}
	for _, key := range closed {
		t.links[key].State = Closed
		delete(t.links, key)
	}
	return sortKeys(closed)
}

// Links returns a copy of every link in room, ordered by key.
func (t *Table) Links(room domain.RoomID) []Link {
	out := make([]Link, 0)
	for key, l := range t.links {
		if key.Room == room {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	return out
}

func (t *Table) Len() int { return len(t.links) }

func sortKeys(keys []PairKey) []PairKey {
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

func less(a, b PairKey) bool {
	if a.Room != b.Room {
		return a.Room < b.Room
	}
	if a.Local != b.Local {
		return a.Local < b.Local
	}
	return a.Remote < b.Remote
}
