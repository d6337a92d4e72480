package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for digests.
// Version suffix enables future algorithm migration.
const (
	DomainState = "loreweave/state/v1"
	DomainEvent = "loreweave/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest hashes a graph state. Entities and relationships are sorted by
// id so insertion order does not affect the digest.
func StateDigest(entities []Entity, relationships []Relationship) (string, error) {
	ents := slices.Clone(entities)
	slices.SortFunc(ents, func(a, b Entity) int { return compareUTF16(string(a.ID), string(b.ID)) })
	rels := slices.Clone(relationships)
	slices.SortFunc(rels, func(a, b Relationship) int { return compareUTF16(string(a.ID), string(b.ID)) })

	entArr := make([]any, len(ents))
	for i, e := range ents {
		entArr[i] = entityObject(e)
	}
	relArr := make([]any, len(rels))
	for i, r := range rels {
		relArr[i] = map[string]any{
			"id":            string(r.ID),
			"kind":          r.Kind,
			"src":           string(r.Src),
			"dst":           string(r.Dst),
			"strength":      r.Strength,
			"formed_tick":   r.FormedTick,
			"archived_tick": r.ArchivedTick,
			"status":        string(r.Status),
		}
	}

	canonical, err := MarshalCanonical(map[string]any{
		"entities":      entArr,
		"relationships": relArr,
	})
	if err != nil {
		return "", fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// EventDigest hashes an ordered narrative event stream.
func EventDigest(events []NarrativeEvent) (string, error) {
	arr := make([]any, len(events))
	for i, ev := range events {
		parts := make([]any, len(ev.Participants))
		for j, p := range ev.Participants {
			parts[j] = map[string]any{"entity": string(p.Entity), "effect": p.Effect}
		}
		arr[i] = map[string]any{
			"id":           ev.ID,
			"tick":         ev.Tick,
			"era":          string(ev.Era),
			"kind":         ev.Kind,
			"subject":      string(ev.Subject),
			"participants": parts,
			"magnitude":    ev.Magnitude,
			"significance": ev.Significance,
			"description":  ev.Description,
			"tags":         slices.Clone(ev.Tags),
			"supersedes":   ev.Supersedes,
		}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("EventDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

func entityObject(e Entity) map[string]any {
	tags := e.Tags
	if tags == nil {
		tags = map[string]float64{}
	}
	return map[string]any{
		"id":            string(e.ID),
		"kind":          e.Kind,
		"subtype":       e.Subtype,
		"name":          e.Name,
		"culture":       e.Culture,
		"status":        string(e.Status),
		"prominence":    e.Prominence,
		"tags":          tags,
		"plane":         e.Coords.Plane,
		"x":             e.Coords.X,
		"y":             e.Coords.Y,
		"created_tick":  e.CreatedTick,
		"updated_tick":  e.UpdatedTick,
		"part_of":       string(e.PartOf),
		"superseded_by": string(e.SupersededBy),
	}
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateDigest(entities []Entity, relationships []Relationship) string {
	d, err := StateDigest(entities, relationships)
	if err != nil {
		panic(err)
	}
	return d
}
