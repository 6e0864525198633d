package vision

import (
	"errors"
	"testing"
)

func TestParseExtractionEmbeddedJSON(t *testing.T) {
	reply := "Sure! Here is what I can see in the photo:\n\n```json\n" +
		`{"name": "Wood Screws", "category": "Fasteners", "quantity": 250, "unit": "pcs", "details": {"size": "#8 x 1-1/4\"", "material": "steel"}}` +
		"\n```\nLet me know if you need anything else."

	item, err := ParseExtraction(reply)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if item.Name != "Wood Screws" {
		t.Errorf("name = %q", item.Name)
	}
	if item.Category != "Fasteners" {
		t.Errorf("category = %q", item.Category)
	}
	if item.Quantity != 250 {
		t.Errorf("quantity = %v", item.Quantity)
	}
	if item.Unit != "pcs" {
		t.Errorf("unit = %q", item.Unit)
	}
	if item.Details["material"] != "steel" {
		t.Errorf("details = %v", item.Details)
	}
}

func TestParseExtractionBareObject(t *testing.T) {
	item, err := ParseExtraction(`{"name":"Paint","category":"Paint","quantity":1,"unit":"gallons"}`)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if item.Name != "Paint" {
		t.Errorf("name = %q", item.Name)
	}
}

func TestParseExtractionSkipsNonItemObjects(t *testing.T) {
	// The first object has no name; the parser should keep scanning.
	reply := `metadata: {"confidence": 0.93} result: {"name":"Hammer","category":"Tools","quantity":1,"unit":"pcs"}`

	item, err := ParseExtraction(reply)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if item.Name != "Hammer" {
		t.Errorf("name = %q", item.Name)
	}
}

func TestParseExtractionFailure(t *testing.T) {
	for _, reply := range []string{
		"",
		"I could not identify any items in this image.",
		`{"name": "unterminated`,
		`{"quantity": 3}`, // no name
	} {
		if _, err := ParseExtraction(reply); !errors.Is(err, ErrNoExtraction) {
			t.Errorf("ParseExtraction(%q) err = %v, want ErrNoExtraction", reply, err)
		}
	}
}
