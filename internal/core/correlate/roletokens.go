package correlate

// roleTokenMapVersion is bumped whenever the synonym map below changes,
// versioned alongside the schema per the design notes. This resolves the
// spec's Open Question on the exact synonym set: the source only showed
// CEO/HR examples, so this explicit, documented list is the implementer's
// decision (see DESIGN.md).
const roleTokenMapVersion = 1

// roleTokenMap normalizes common role/title abbreviations to a single
// canonical token so "CEO" and "Chief Executive Officer" collide during
// canonicalization step 3.
var roleTokenMap = map[string]string{
	"chief executive officer": "ceo",
	"chief financial officer": "cfo",
	"chief operating officer": "coo",
	"chief technology officer": "cto",
	"human resources":         "hr",
	"human resources manager": "hr manager",
	"vice president":          "vp",
	"senior vice president":   "svp",
	"general counsel":         "gc",
	"head of department":      "hod",
	"manager":                 "mgr",
}
