package jsonpath

import "testing"

func TestValidate(t *testing.T) {
	ok := []string{`null`, `true`, `1.5e3`, `"hi\"there"`, `{"a":1,"b":[1,2,3]}`, `  [1, 2]  `}
	bad := []string{``, `{`, `{"a":}`, `[1,2`, `"unterminated`, `truex`, `1 2`}

	for _, c := range ok {
		if !Validate(c) {
			t.Errorf("Validate(%q) = false, want true", c)
		}
	}
	for _, c := range bad {
		if Validate(c) {
			t.Errorf("Validate(%q) = true, want false", c)
		}
	}
}

func TestExtractObjectField(t *testing.T) {
	kind, text, err := Extract(`{"t":{"h":77,"p":1013}}`, "t.h")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kind != Number || text != "77" {
		t.Fatalf("Extract t.h = (%v, %q), want (Number, 77)", kind, text)
	}
}

func TestExtractArrayIndex(t *testing.T) {
	kind, text, err := Extract(`{"items":[10,20,30]}`, "items[1]")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kind != Number || text != "20" {
		t.Fatalf("Extract items[1] = (%v, %q), want (Number, 20)", kind, text)
	}
}

func TestExtractStringStripsQuotes(t *testing.T) {
	kind, text, err := Extract(`{"name":"hub"}`, "name")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kind != String || text != "hub" {
		t.Fatalf("Extract name = (%v, %q), want (String, hub)", kind, text)
	}
}

func TestExtractNotFound(t *testing.T) {
	_, _, err := Extract(`{"a":1}`, "b")
	var e *Error
	if err == nil {
		t.Fatal("expected error")
	}
	if !asError(err, &e) || e.Kind != NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestExtractBadSpec(t *testing.T) {
	_, _, err := Extract(`{"a":1}`, "")
	var e *Error
	if !asError(err, &e) || e.Kind != BadSpec {
		t.Fatalf("got %v, want BadSpec", err)
	}
}

func TestExtractFormatError(t *testing.T) {
	_, _, err := Extract(`{"a":`, "a")
	var e *Error
	if !asError(err, &e) || e.Kind != FormatError {
		t.Fatalf("got %v, want FormatError", err)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
