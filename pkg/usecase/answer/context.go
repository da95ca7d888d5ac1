package answer

import (
	"strings"

	"github.com/m-mizutani/omoide/pkg/model"
)

// NoContextMarker tells the language model that retrieval found nothing
const NoContextMarker = "No context available."

// FormatContext renders hits best first, one "At {time}, in {location}, {description}"
// line each. No hits yields NoContextMarker.
func FormatContext(hits []*model.Hit) string {
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		lines = append(lines, h.Line())
	}
	if len(lines) == 0 {
		return NoContextMarker
	}
	return strings.Join(lines, "\n")
}
