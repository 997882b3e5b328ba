package reflection

import (
	"regexp"

	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/store"
)

// The model sometimes writes the replacement text into the rationale
// instead of the content field ("...so I'm changing it to 'the cellar
// key'"). These patterns pull it back out. Intent inference from prose is
// inherently fragile, which is why the whole pass sits behind an option.
var rationaleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)chang(?:e|ing|ed) (?:it|this|that|the \w+) to ['"]([^'"]+)['"]`),
	regexp.MustCompile(`(?i)correct(?:ing|ed)? ['"][^'"]+['"] to ['"]([^'"]+)['"]`),
	regexp.MustCompile(`(?i)should (?:now )?(?:be|read|say) ['"]([^'"]+)['"]`),
	regexp.MustCompile(`(?i)updat(?:e|ing|ed) (?:it|this|that|the \w+) to ['"]([^'"]+)['"]`),
}

// recoverMalformed gives content-less edit proposals a second chance by
// mining their rationale for the intended replacement text. Anything still
// invalid after the salvage is discarded.
func recoverMalformed(malformed []store.Proposal) []store.Proposal {
	var recovered []store.Proposal
	for i := range malformed {
		p := malformed[i]
		if p.Action != store.ActionEdit || p.Content != "" {
			continue
		}

		content, ok := contentFromRationale(p.Rationale)
		if !ok {
			continue
		}
		p.Content = content
		if err := Validate(&p); err != nil {
			continue
		}

		p.Status = store.ProposalPending
		recovered = append(recovered, p)
		logger.Debug("recovered proposal content from rationale", "type", p.Type, "target", p.TargetID)
	}
	return recovered
}

func contentFromRationale(rationale string) (string, bool) {
	for _, re := range rationaleRes {
		if m := re.FindStringSubmatch(rationale); m != nil {
			return m[1], true
		}
	}
	return "", false
}
