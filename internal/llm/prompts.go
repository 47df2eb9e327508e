package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SystemInstruction frames every request.
const SystemInstruction = `You fill in a university remote-course teaching plan template.
Given the application form data, produce the text for each requested template field, formatted
the way the sample document formats it:
- checkboxes: ■ marks a selected option, □ an unselected one
- academic year, semester and date formats as in the sample
- table rows laid out as in the sample
- copy special symbols exactly
Answer with a single JSON object only. Every requested field must be present.`

// PromptBuilder constructs the per-batch prompt.
type PromptBuilder struct{}

// BuildValuesPrompt renders the form data and the batch keys into one prompt.
// The reference document itself is attached by the provider, not inlined here,
// unless the provider can only send text.
func (pb *PromptBuilder) BuildValuesPrompt(req Request, inlineReference bool) (string, error) {
	form, err := marshalIndent(req.FormData)
	if err != nil {
		return "", fmt.Errorf("encoding form data: %w", err)
	}
	keys, err := marshalIndent(req.Keys)
	if err != nil {
		return "", fmt.Errorf("encoding placeholder keys: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("The form data of a remote-course application must be written into a Word template.\n")
	if req.Reference != nil {
		sb.WriteString("Use the attached sample document to learn the expected formatting and symbols.\n")
	}
	if inlineReference && req.Reference != nil && strings.TrimSpace(req.Reference.Text) != "" {
		sb.WriteString("\n## Sample document\n")
		sb.WriteString("```\n")
		sb.WriteString(req.Reference.Text)
		sb.WriteString("\n```\n")
	}

	sb.WriteString("\n## Form data\n```json\n")
	sb.Write(form)
	sb.WriteString("\n```\n")

	sb.WriteString("\n## Fields in this batch\n")
	sb.Write(keys)
	sb.WriteString("\n")

	sb.WriteString("\n## Task\n")
	sb.WriteString("Produce a correctly formatted value for every field above.\n")
	sb.WriteString("- For choices, list every option with ■ or □.\n")
	sb.WriteString("- Weekly fields come from the course_outline_weeks array, grading fields from grading_criteria.\n")
	sb.WriteString("- When the form has no matching data, infer a reasonable value from context; never leave a field out.\n")
	sb.WriteString("- Use \\n inside a value where a line break is needed, e.g. one option per line.\n")
	sb.WriteString("\nReturn a JSON object whose keys are exactly the field texts listed above.\n")
	return sb.String(), nil
}

// marshalIndent encodes v without escaping <, > and &, so form text reaches
// the model as typed.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
