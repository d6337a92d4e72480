package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/loreweave/internal/ir"
)

// CompileWorld compiles a schema-checked CUE value into a World.
// Relationships without a strength get strength 1.
func CompileWorld(v cue.Value) (*ir.World, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	w := &ir.World{}
	err := decodeFields(v,
		field("kinds", &w.Kinds),
		field("planes", &w.Planes),
		field("entities", &w.Entities),
		nested("relationships"),
		field("params", &w.Params),
	)
	if err != nil {
		return nil, err
	}
	err = eachElem(v, "relationships", func(e cue.Value) error {
		r := ir.RelationshipInit{Strength: 1}
		if err := decodeFields(e,
			field("kind", &r.Kind), field("src", &r.Src), field("dst", &r.Dst), field("strength", &r.Strength)); err != nil {
			return err
		}
		w.Relationships = append(w.Relationships, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}
