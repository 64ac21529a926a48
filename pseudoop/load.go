package pseudoop

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/encoding/json"
)

// LoadText parses the plain-text pseudo-op catalog format (spec.md
// §4.7): one definition per line, tab-separated, first field the
// example syntax, remaining fields expansion templates, a trailing
// "#..." field a description. "#" in column 1 introduces a full-line
// comment; leading whitespace on a would-be entry line is rejected.
func LoadText(r io.Reader) ([]*PseudoOpDefinition, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var defs []*PseudoOpDefinition
	var problems []string
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			problems = append(problems, fmt.Sprintf("line %d: unexpected continuation", lineNo))
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			problems = append(problems, fmt.Sprintf("line %d: expected at least two tab-separated fields", lineNo))
			continue
		}

		example := strings.TrimSpace(fields[0])
		templates := append([]string(nil), fields[1:]...)
		description := ""
		if n := len(templates); n > 0 {
			if idx := strings.IndexByte(templates[n-1], '#'); idx >= 0 {
				description = strings.TrimSpace(templates[n-1][idx+1:])
				templates[n-1] = strings.TrimSpace(templates[n-1][:idx])
				if templates[n-1] == "" {
					templates = templates[:n-1]
				}
			}
		}
		for i, t := range templates {
			templates[i] = strings.TrimSpace(t)
		}

		defs = append(defs, &PseudoOpDefinition{Example: example, Templates: templates, Description: description})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("pseudoop: catalog errors:\n%s", strings.Join(problems, "\n"))
	}
	return defs, nil
}

// jsonForm mirrors one entry of the JSON catalog format (spec.md
// §4.7): `{ example, templates[], description? }`.
type jsonForm struct {
	Example     string   `json:"example"`
	Templates   []string `json:"templates"`
	Description string   `json:"description,omitempty"`
}

// LoadJSON parses either a flat array of forms or an object keyed by
// mnemonic whose value is a single form or an array of forms.
func LoadJSON(r io.Reader) ([]*PseudoOpDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var arr []jsonForm
	if err := json.Unmarshal(data, &arr); err == nil {
		return formsToDefs(arr), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("pseudoop: invalid JSON pseudo-op catalog: %w", err)
	}

	var defs []*PseudoOpDefinition
	for mnemonic, raw := range obj {
		var one jsonForm
		if err := json.Unmarshal(raw, &one); err == nil && one.Example != "" {
			defs = append(defs, &PseudoOpDefinition{Example: one.Example, Templates: one.Templates, Description: one.Description})
			continue
		}
		var many []jsonForm
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, fmt.Errorf("pseudoop: invalid JSON entry for %q: %w", mnemonic, err)
		}
		defs = append(defs, formsToDefs(many)...)
	}
	return defs, nil
}

func formsToDefs(forms []jsonForm) []*PseudoOpDefinition {
	out := make([]*PseudoOpDefinition, len(forms))
	for i, f := range forms {
		out[i] = &PseudoOpDefinition{Example: f.Example, Templates: f.Templates, Description: f.Description}
	}
	return out
}

// mnemonicOf extracts a definition's mnemonic from its example text,
// used by Default/LoadWithOverride to merge by mnemonic (spec.md §4.7:
// "user entries overwriting by mnemonic").
func mnemonicOf(d *PseudoOpDefinition) string {
	fields := strings.Fields(d.Example)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
