package jsonpath

import "testing"

func TestIsScript(t *testing.T) {
	if !IsScript("=doc.a") {
		t.Fatal("IsScript(\"=doc.a\") = false, want true")
	}
	if IsScript("doc.a") {
		t.Fatal("IsScript(\"doc.a\") = true, want false")
	}
}

func TestExtractScriptFieldAccess(t *testing.T) {
	kind, text, err := ExtractScript(`{"t":{"h":77}}`, "=doc.t.h")
	if err != nil {
		t.Fatalf("ExtractScript: %v", err)
	}
	if kind != Number || text != "77" {
		t.Fatalf("ExtractScript = (%v, %q), want (Number, 77)", kind, text)
	}
}

func TestExtractScriptExpression(t *testing.T) {
	kind, text, err := ExtractScript(`{"a":3,"b":4}`, "=doc.a + doc.b")
	if err != nil {
		t.Fatalf("ExtractScript: %v", err)
	}
	if kind != Number || text != "7" {
		t.Fatalf("ExtractScript = (%v, %q), want (Number, 7)", kind, text)
	}
}

func TestExtractScriptBadJSON(t *testing.T) {
	_, _, err := ExtractScript(`not json`, "=doc.a")
	if err == nil {
		t.Fatal("expected FormatError for malformed JSON")
	}
}

func TestEvaluateTransformScriptSum(t *testing.T) {
	v, err := EvaluateTransformScript([]float64{1, 2, 3}, "values.reduce((a, b) => a + b, 0)")
	if err != nil {
		t.Fatalf("EvaluateTransformScript: %v", err)
	}
	if v != 6 {
		t.Fatalf("EvaluateTransformScript sum = %v, want 6", v)
	}
}

func TestEvaluateTransformScriptNonNumberResult(t *testing.T) {
	_, err := EvaluateTransformScript([]float64{1, 2}, `"not a number"`)
	if err == nil {
		t.Fatal("expected error for non-numeric script result")
	}
}
