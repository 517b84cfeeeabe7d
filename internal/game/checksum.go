package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SnapshotVersion is the persisted snapshot format version.
const SnapshotVersion = 1

var (
	// ErrChecksumMismatch is returned when a persisted snapshot does not match
	// its recorded checksum.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	// ErrSnapshotVersion is returned for snapshots written by an unknown format.
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// Snapshot is the persisted form of a session state.
type Snapshot struct {
	Version  int    `json:"version"`
	Checksum string `json:"checksum"`
	State    *State `json:"state"`
}

// Checksum computes a SHA-256 over a canonical rendering of s. The rendering
// is independent of map iteration order and excludes UpdatedAt.
func Checksum(s *State) string {
	sum := sha256.Sum256(canonical(s))
	return hex.EncodeToString(sum[:])
}

func canonical(s *State) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "SESSION:%s|%d|%d\n", s.ID, len(s.Players), len(s.Actions))

	for _, p := range s.Players {
		if p == nil {
			buf.WriteString("PLAYER:<nil>\n")
			continue
		}
		fmt.Fprintf(&buf, "PLAYER:%s|%s\n", p.ID, p.Name)
		if p.Deck != nil {
			fmt.Fprintf(&buf, "  DECK:%s|%s|%d\n", p.Deck.Name, p.Deck.Commander, len(p.Deck.Definitions))
		}
		for _, zone := range AllZones {
			fmt.Fprintf(&buf, "  ZONE:%s", zone)
			for _, id := range p.Zones.Get(zone) {
				buf.WriteByte('|')
				buf.WriteString(id)
			}
			buf.WriteByte('\n')
		}
	}

	ids := make([]string, 0, len(s.Cards))
	for id := range s.Cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := s.Cards[id]
		if c == nil {
			fmt.Fprintf(&buf, "CARD:%s|<nil>\n", id)
			continue
		}
		fmt.Fprintf(&buf, "CARD:%s|%s|%s|%s|%t|%t|%d", id, c.DefinitionID, c.OwnerID, c.Zone, c.IsFaceUp, c.IsTapped, c.Rotation)
		if c.Position != nil {
			fmt.Fprintf(&buf, "|%g,%g", c.Position.X, c.Position.Y)
		}
		buf.WriteByte('\n')
	}

	for _, a := range s.Actions {
		fmt.Fprintf(&buf, "ACTION:%s|%s|%s\n", a.ID, a.Type, a.PlayerID)
	}
	return buf.Bytes()
}

// MarshalSnapshot encodes s together with its checksum.
func MarshalSnapshot(s *State) ([]byte, error) {
	data, err := json.Marshal(Snapshot{
		Version:  SnapshotVersion,
		Checksum: Checksum(s),
		State:    s,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %s: %w", s.ID, err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a persisted snapshot and verifies its checksum and
// zone invariants.
func UnmarshalSnapshot(data []byte) (*State, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	if snap.State == nil {
		return nil, errors.New("snapshot has no state")
	}
	if err := checkEntries(snap.State); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.State.ID, err)
	}
	normalize(snap.State)
	if got := Checksum(snap.State); got != snap.Checksum {
		return nil, fmt.Errorf("%w: session %s", ErrChecksumMismatch, snap.State.ID)
	}
	if err := snap.State.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.State.ID, err)
	}
	return snap.State, nil
}

// checkEntries rejects null players or cards, which JSON decoding accepts.
func checkEntries(s *State) error {
	for i, p := range s.Players {
		if p == nil {
			return fmt.Errorf("player %d is null", i)
		}
	}
	for id, c := range s.Cards {
		if c == nil {
			return fmt.Errorf("card %s is null", id)
		}
	}
	return nil
}

// normalize restores the empty collections JSON decoding may leave nil.
func normalize(s *State) {
	if s.Players == nil {
		s.Players = make([]*Player, 0)
	}
	if s.Cards == nil {
		s.Cards = make(map[string]*Card)
	}
	if s.Actions == nil {
		s.Actions = make([]Action, 0)
	}
	for _, p := range s.Players {
		for _, zone := range AllZones {
			if p.Zones.Get(zone) == nil {
				p.Zones.Set(zone, []string{})
			}
		}
	}
}
