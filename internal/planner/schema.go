package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed plan_schema.json
var planSchemaJSON string

// PlanDocument is the decomposer's JSON answer.
type PlanDocument struct {
	Subquestions []string `json:"subquestions"`
	Rationale    string   `json:"rationale,omitempty"`
}

var (
	compileOnce sync.Once
	planSchema  *jsonschema.Schema
	compileErr  error
)

// PlanSchema returns the compiled JSON Schema for decomposer output.
func PlanSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("plan_schema.json", strings.NewReader(planSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("plan_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile planner schema: %w", err)
			return
		}
		planSchema = schema
	})
	return planSchema, compileErr
}

// ValidatePlanDocument validates the provided JSON bytes against the plan schema.
func ValidatePlanDocument(data []byte) (PlanDocument, error) {
	schema, err := PlanSchema()
	if err != nil {
		return PlanDocument{}, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return PlanDocument{}, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return PlanDocument{}, fmt.Errorf("plan does not match schema: %w", err)
	}
	var plan PlanDocument
	if err := json.Unmarshal(data, &plan); err != nil {
		return PlanDocument{}, fmt.Errorf("decode plan: %w", err)
	}
	return plan, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|Q\d+[:.])\s*`)

// Subquestions extracts at most max questions from a model reply. JSON that
// matches the schema wins; otherwise list items are used, and when nothing
// usable is found the topic itself is the only question.
func Subquestions(reply, topic string, max int) []string {
	if max < 1 {
		max = 1
	}
	var out []string
	if doc := extractJSON(reply); doc != "" {
		if plan, err := ValidatePlanDocument([]byte(doc)); err == nil {
			out = clean(plan.Subquestions)
		}
	}
	if len(out) == 0 {
		var lines []string
		for _, line := range strings.Split(reply, "\n") {
			if !listMarker.MatchString(line) {
				continue
			}
			lines = append(lines, listMarker.ReplaceAllString(line, ""))
		}
		out = clean(lines)
	}
	if len(out) == 0 {
		return []string{topic}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// extractJSON returns the outermost {...} span, tolerating code fences and prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clean(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(strings.Trim(strings.TrimSpace(q), `"`))
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
	}
	return out
}
