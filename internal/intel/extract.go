package intel

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/resilience"
)

// DefaultSourceTitle labels grounding sources that arrive without a title.
const DefaultSourceTitle = "Market Source"

// ExtractJSON parses the JSON document in a model response. Code fences are
// stripped first. If the text does not parse as a whole, the span from the
// first '{' to the last '}' is tried. Failure wraps
// resilience.ErrMalformedPayload.
func ExtractJSON(text string) (any, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)
	if text == "" {
		text = "{}"
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err == nil {
		return doc, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Wrap(resilience.ErrMalformedPayload, "intel: no JSON block found in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil, eris.Wrap(resilience.ErrMalformedPayload, "intel: response was not valid JSON")
	}
	return doc, nil
}

// GroundingSources converts provider citations into record sources. Entries
// with an empty URI are dropped, blank titles become DefaultSourceTitle, and
// order is preserved. The result is never nil.
func GroundingSources(citations []Citation) []model.GroundingSource {
	out := make([]model.GroundingSource, 0, len(citations))
	for _, c := range citations {
		uri := strings.TrimSpace(c.URI)
		if uri == "" {
			continue
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = DefaultSourceTitle
		}
		out = append(out, model.GroundingSource{Title: title, URI: uri})
	}
	return out
}
