package worksheet

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MaxSteps is the maximum number of steps per worksheet.
const MaxSteps = 500

// MaxSourceSize is the maximum worksheet source size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// ParseError represents an error encountered during worksheet parsing.
type ParseError struct {
	Message  string
	Location string // e.g., "step 'foo'"
	Line     int    // 1-based source position, zero when unknown
	Column   int
}

func (e *ParseError) Error() string {
	where := e.Location
	if e.Line > 0 {
		pos := fmt.Sprintf("line %d, column %d", e.Line, e.Column)
		if where != "" {
			where += " (" + pos + ")"
		} else {
			where = pos
		}
	}
	if where != "" {
		return fmt.Sprintf("parse error at %s: %s", where, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// nodeError reports msg at the source position of node.
func nodeError(node *yaml.Node, loc, msg string) *ParseError {
	return &ParseError{Message: msg, Location: loc, Line: node.Line, Column: node.Column}
}

// Parse parses a YAML or JSON worksheet definition.
func Parse(source []byte) (*Worksheet, error) {
	if len(source) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("worksheet source size %d exceeds maximum %d bytes", len(source), MaxSourceSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// The root node is a document node containing the actual content
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ParseError{Message: "empty worksheet definition"}
	}

	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nodeError(root, "", "worksheet definition must be a mapping")
	}

	ws := &Worksheet{Vars: make(map[rune]float64)}
	hasSteps := false

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		switch key {
		case "name":
			ws.Name = val.Value
		case "description":
			ws.Description = val.Value
		case "vars":
			vars, err := parseBindings(val, "vars")
			if err != nil {
				return nil, err
			}
			ws.Vars = vars
		case "steps":
			steps, err := parseSteps(val)
			if err != nil {
				return nil, err
			}
			ws.Steps = steps
			hasSteps = true
		default:
			return nil, nodeError(root.Content[i], "", fmt.Sprintf("unknown key '%s' in worksheet", key))
		}
	}

	if !hasSteps {
		return nil, &ParseError{Message: "worksheet must have 'steps'"}
	}
	return ws, nil
}

// parseSteps parses a sequence of single-key step mappings.
func parseSteps(node *yaml.Node) ([]*Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, nodeError(node, "", "steps must be a sequence")
	}
	if len(node.Content) > MaxSteps {
		return nil, &ParseError{Message: fmt.Sprintf("worksheet has %d steps, maximum is %d", len(node.Content), MaxSteps)}
	}

	seen := make(map[string]bool)
	steps := make([]*Step, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return nil, nodeError(item, "steps", "each step must be a single-key mapping")
		}

		name := item.Content[0].Value
		if seen[name] {
			return nil, nodeError(item.Content[0], fmt.Sprintf("step '%s'", name), "duplicate step name")
		}
		seen[name] = true

		step, err := parseStep(name, item.Content[1])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseStep parses a single step body.
func parseStep(name string, body *yaml.Node) (*Step, error) {
	step := &Step{Name: name}
	loc := fmt.Sprintf("step '%s'", name)

	if body.Kind != yaml.MappingNode {
		return nil, nodeError(body, loc, "step body must be a mapping")
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		key := body.Content[i].Value
		val := body.Content[i+1]

		switch key {
		case "for":
			v, err := ParseVariableName(val.Value)
			if err != nil {
				return nil, nodeError(val, loc, err.Error())
			}
			step.Variable = v

		case "expect":
			if val.Kind != yaml.ScalarNode {
				return nil, nodeError(val, loc, "expect must be a scalar")
			}
			step.Expect = val.Value
			step.HasExpect = true

		case "set":
			set, err := parseBindings(val, loc)
			if err != nil {
				return nil, err
			}
			step.Set = set

		case "substitute":
			if err := val.Decode(&step.Substitute); err != nil {
				return nil, nodeError(val, loc, "substitute must be a boolean")
			}

		default:
			op, err := ParseOp(key)
			if err != nil {
				return nil, nodeError(body.Content[i], loc, fmt.Sprintf("unknown key '%s' in step", key))
			}
			if step.Op != "" {
				return nil, nodeError(body.Content[i], loc, fmt.Sprintf("step has both '%s' and '%s'", step.Op, op))
			}
			if val.Kind != yaml.ScalarNode {
				return nil, nodeError(val, loc, fmt.Sprintf("'%s' must be a formula string", key))
			}
			step.Op = op
			step.Formula = val.Value
		}
	}

	if step.Op == "" {
		return nil, nodeError(body, loc, "step must have an operation")
	}
	if step.Variable != 0 && !step.Op.TargetsVariable() {
		return nil, nodeError(body, loc, fmt.Sprintf("'for' is not valid with '%s'", step.Op))
	}
	return step, nil
}

// parseBindings parses a mapping of single-letter variables to numbers.
func parseBindings(node *yaml.Node, loc string) (map[rune]float64, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nodeError(node, loc, "bindings must be a mapping")
	}

	out := make(map[rune]float64, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, err := ParseVariableName(node.Content[i].Value)
		if err != nil {
			return nil, nodeError(node.Content[i], loc, err.Error())
		}
		var f float64
		if err := node.Content[i+1].Decode(&f); err != nil {
			return nil, nodeError(node.Content[i+1], loc, fmt.Sprintf("value for '%c' must be a number", name))
		}
		out[name] = f
	}
	return out, nil
}

// ParseVariableName validates a single-letter variable name.
func ParseVariableName(s string) (rune, error) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || !unicode.IsLetter(r) {
		return 0, fmt.Errorf("variable name '%s' must be a single letter", s)
	}
	return r, nil
}

// ParseBindings converts name-keyed bindings, as decoded from JSON or
// flags, into variable bindings.
func ParseBindings(in map[string]float64) (map[rune]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[rune]float64, len(in))
	for name, v := range in {
		r, err := ParseVariableName(name)
		if err != nil {
			return nil, err
		}
		out[r] = v
	}
	return out, nil
}
