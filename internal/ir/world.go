package ir

// EntityInit describes an entity to add to the graph.
// An empty ID asks the graph to generate one.
type EntityInit struct {
	ID         EntityID           `json:"id,omitempty"`
	Kind       string             `json:"kind"`
	Subtype    string             `json:"subtype,omitempty"`
	Name       string             `json:"name,omitempty"`
	Culture    string             `json:"culture,omitempty"`
	Status     Status             `json:"status,omitempty"`
	Prominence float64            `json:"prominence"`
	Tags       map[string]float64 `json:"tags,omitempty"`
	Coords     Coordinates        `json:"coords"`
	PartOf     EntityID           `json:"part_of,omitempty"`
}

// EntityPatch describes an update to an existing entity. Nil fields are
// left untouched.
type EntityPatch struct {
	Name            *string            `json:"name,omitempty"`
	Culture         *string            `json:"culture,omitempty"`
	Status          *Status            `json:"status,omitempty"`
	Prominence      *float64           `json:"prominence,omitempty"`
	ProminenceDelta float64            `json:"prominence_delta,omitempty"`
	SetTags         map[string]float64 `json:"set_tags,omitempty"`
	RemoveTags      []string           `json:"remove_tags,omitempty"`
	Coords          *Coordinates       `json:"coords,omitempty"`
	PartOf          *EntityID          `json:"part_of,omitempty"`
}

// RelationshipInit describes a relationship in a world seed.
type RelationshipInit struct {
	Kind     string   `json:"kind"`
	Src      EntityID `json:"src"`
	Dst      EntityID `json:"dst"`
	Strength float64  `json:"strength"`
}

// KindSpec declares one entity kind of the taxonomy.
type KindSpec struct {
	Name     string   `json:"name"`
	Subtypes []string `json:"subtypes,omitempty"`
}

// Params are run parameters supplied by the world seed.
type Params struct {
	Ticks int   `json:"ticks"`
	Seed  int64 `json:"seed"`
}

// Plane declares a coordinate plane and its bounds.
type Plane struct {
	Name     string  `json:"name"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	CellSize float64 `json:"cell_size"`
}

// World is the initial state handed to the engine.
type World struct {
	Kinds         []KindSpec         `json:"kinds"`
	Planes        []Plane            `json:"planes,omitempty"`
	Entities      []EntityInit       `json:"entities"`
	Relationships []RelationshipInit `json:"relationships,omitempty"`
	Params        Params             `json:"params"`
}

// HasKind reports whether the taxonomy declares kind. An empty taxonomy
// accepts every kind.
func (w *World) HasKind(kind string) bool {
	if len(w.Kinds) == 0 || kind == KindEra {
		return true
	}
	for _, k := range w.Kinds {
		if k.Name == kind {
			return true
		}
	}
	return false
}
