// accolade/pkg/validator/validator.go

// Package validator checks badge rule definitions before they are compiled.
package validator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/rule.json
var schemaFS embed.FS

var (
	RequiredRuleFields = []string{"name", "image_url", "description", "creator", "discussion", "trigger"}

	PossibleRuleFields = append([]string{
		"issuer_id",
		"condition",
		"previous",
		"recipient",
		"recipient_nick2fas",
		"recipient_email2fas",
		"recipient_ircnick2fas",
		"recipient_openid2fas",
		"recipient_github2fas",
		"recipient_distgit2fas",
		"recipient_krb2fas",
		"tags",
	}, RequiredRuleFields...)
)

// RuleError reports everything wrong with one rule definition.
type RuleError struct {
	Rule    string
	Missing []string
	Unknown []string
	Schema  []string
}

func (e *RuleError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown fields %v", e.Unknown))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields %v", e.Missing))
	}
	parts = append(parts, e.Schema...)
	return fmt.Sprintf("validation failed for %s: %s", e.Rule, strings.Join(parts, "; "))
}

// CheckFields compares the keys of a mapping against a required and a
// possible field set. Both returned slices are sorted.
func CheckFields(required, possible []string, value map[string]any) (missing, unknown []string) {
	allowed := make(map[string]struct{}, len(possible))
	for _, f := range possible {
		allowed[f] = struct{}{}
	}
	for k := range value {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	for _, f := range required {
		if _, ok := value[f]; !ok {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return missing, unknown
}

// ValidateFields is CheckFields returning an error instead of the field lists.
func ValidateFields(required, possible []string, value map[string]any) error {
	missing, unknown := CheckFields(required, possible, value)
	if len(unknown) > 0 {
		return fmt.Errorf("%v are not possible fields, choose from %v", unknown, possible)
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields are %v, missing %v", required, missing)
	}
	return nil
}

// Validator validates rule definitions against the embedded rule schema.
type Validator struct {
	schema *jsonschema.Schema
}

func New() (*Validator, error) {
	data, err := schemaFS.ReadFile("schemas/rule.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse embedded schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("rule.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("rule.json")
	if err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateRule checks a decoded rule definition. fallbackName identifies the
// rule in the returned error when the definition carries no name.
func (v *Validator) ValidateRule(def map[string]any, fallbackName string) error {
	ruleName := fallbackName
	if n, ok := def["name"].(string); ok && n != "" {
		ruleName = n
	}

	missing, unknown := CheckFields(RequiredRuleFields, PossibleRuleFields, def)
	if len(missing) > 0 || len(unknown) > 0 {
		return &RuleError{Rule: ruleName, Missing: missing, Unknown: unknown}
	}

	doc, err := normalize(def)
	if err != nil {
		return &RuleError{Rule: ruleName, Schema: []string{err.Error()}}
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return &RuleError{Rule: ruleName, Schema: []string{err.Error()}}
		}
		return &RuleError{Rule: ruleName, Schema: collectErrors(ve)}
	}
	return nil
}

// normalize turns YAML-decoded values into the JSON value model the schema
// validator expects.
func normalize(def map[string]any) (any, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("rule is not representable as JSON: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func collectErrors(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, ve.Error())}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, collectErrors(cause)...)
	}
	return out
}
