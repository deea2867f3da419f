package agent

import (
	"context"
	"strings"
	"testing"
)

func searchTool() *Tool {
	return &Tool{
		Name:        "search",
		Description: "Searches things.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"query":  {Type: "string"},
				"limit":  {Type: "integer"},
				"score":  {Type: "number"},
				"exact":  {Type: "boolean"},
				"tags":   {Type: "array", Items: &Schema{Type: "string"}},
				"cursor": {Type: "string", Nullable: true},
				"filter": {AnyOf: []*Schema{{Type: "integer"}, {Type: "string"}, {Type: "null"}}},
			},
			Required: []string{"query"},
		},
		Fn: func(context.Context, map[string]any) (string, error) { return "", nil },
	}
}

func TestParseArgumentsCoercion(t *testing.T) {
	tool := searchTool()

	args, err := ParseArguments(tool, `{"query":"go","limit":3,"score":0.5,"exact":true,"tags":["a","b"]}`)
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	if args["query"] != "go" {
		t.Errorf("query = %v", args["query"])
	}
	if args["limit"] != int64(3) {
		t.Errorf("limit = %v (%T)", args["limit"], args["limit"])
	}
	if args["score"] != 0.5 {
		t.Errorf("score = %v", args["score"])
	}
	if args["exact"] != true {
		t.Errorf("exact = %v", args["exact"])
	}
	// Missing optional keys bind to null.
	if v, present := args["cursor"]; !present || v != nil {
		t.Errorf("cursor = %v present=%v", v, present)
	}
}

func TestParseArgumentsScalarConversions(t *testing.T) {
	tool := searchTool()
	args, err := ParseArguments(tool, `{"query":"q","limit":"7","exact":"false","score":"2.5"}`)
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	if args["limit"] != int64(7) || args["exact"] != false || args["score"] != 2.5 {
		t.Errorf("converted args = %v", args)
	}
}

func TestParseArgumentsUnionFirstMatch(t *testing.T) {
	tool := searchTool()

	args, err := ParseArguments(tool, `{"query":"q","filter":5}`)
	if err != nil {
		t.Fatal(err)
	}
	if args["filter"] != int64(5) {
		t.Errorf("integer variant not taken first: %v (%T)", args["filter"], args["filter"])
	}

	args, err = ParseArguments(tool, `{"query":"q","filter":"abc"}`)
	if err != nil {
		t.Fatal(err)
	}
	if args["filter"] != "abc" {
		t.Errorf("string variant = %v", args["filter"])
	}

	args, err = ParseArguments(tool, `{"query":"q","filter":null}`)
	if err != nil {
		t.Fatal(err)
	}
	if args["filter"] != nil {
		t.Errorf("null variant = %v", args["filter"])
	}
}

func TestParseArgumentsFailures(t *testing.T) {
	tool := searchTool()
	cases := map[string]string{
		"invalid json":      `{not json`,
		"non-object top":    `["a"]`,
		"missing required":  `{"limit":1}`,
		"bad integer":       `{"query":"q","limit":1.5}`,
		"null non-nullable": `{"query":null}`,
		"union no match":    `{"query":"q","filter":[1]}`,
	}
	for name, raw := range cases {
		if _, err := ParseArguments(tool, raw); err == nil {
			t.Errorf("%s: expected parse failure", name)
		}
	}
}

func TestParseArgumentsEmptyDefaultsToObject(t *testing.T) {
	tool := &Tool{Name: "t", Fn: func(context.Context, map[string]any) (string, error) { return "", nil }}
	args, err := ParseArguments(tool, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 0 {
		t.Errorf("args = %v", args)
	}
}

func TestParseArgumentsPassthroughUnknownKeys(t *testing.T) {
	tool := searchTool()
	args, err := ParseArguments(tool, `{"query":"q","extra":{"deep":true}}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := args["extra"].(map[string]any); !ok {
		t.Errorf("extra = %v", args["extra"])
	}
}

func TestParseArgumentsStrictValidation(t *testing.T) {
	tool := searchTool()
	tool.Strict = true
	tool.Parameters.AdditionalProperties = boolPtr(false)

	if _, err := ParseArguments(tool, `{"query":"q","unknown":1}`); err == nil {
		t.Error("strict schema should reject additional properties")
	}
	if _, err := ParseArguments(tool, `{"query":"q"}`); err != nil {
		t.Errorf("valid strict args rejected: %v", err)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestFormatArgParseErrorTruncates(t *testing.T) {
	raw := strings.Repeat("x", 600)
	msg := FormatArgParseError(errFake("boom"), raw)
	if !strings.HasPrefix(msg, "Failed to parse tool arguments: boom\nRaw arguments: ") {
		t.Errorf("message = %q", msg)
	}
	if strings.Count(msg, "x") != 500 {
		t.Errorf("raw arguments not truncated to 500: %d", strings.Count(msg, "x"))
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
