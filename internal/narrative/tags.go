package narrative

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/loreweave/internal/ir"
)

var themes = map[string]string{
	KindEmergence:      "growth",
	KindDownfall:       "collapse",
	KindSuccession:     "legacy",
	KindRise:           "power",
	KindDecline:        "power",
	KindBondFormed:     "alliance",
	KindBondBroken:     "conflict",
	KindTransformation: "change",
}

// TagGenerator derives event tags from the event kind and the entities
// involved.
type TagGenerator struct {
	lower cases.Caser
}

// NewTagGenerator creates a tag generator.
func NewTagGenerator() *TagGenerator {
	return &TagGenerator{lower: cases.Lower(language.Und)}
}

// Generate returns a thematic tag for kind plus culture:<c> and kind:<k>
// for every participant, deduplicated and sorted.
func (g *TagGenerator) Generate(kind string, participants []ir.Entity) []string {
	theme, ok := themes[kind]
	if !ok {
		theme = kind
	}
	tags := []string{"theme:" + g.slug(theme)}
	for _, e := range participants {
		if e.Culture != "" {
			tags = append(tags, "culture:"+g.slug(e.Culture))
		}
		if e.Kind != "" {
			tags = append(tags, "kind:"+g.slug(e.Kind))
		}
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

func (g *TagGenerator) slug(s string) string {
	return strings.Join(strings.Fields(g.lower.String(s)), "_")
}
