package models

import (
	"encoding/json"
	"testing"
)

func TestJSONTextScan(t *testing.T) {
	cases := []struct {
		src  any
		want string
	}{
		{src: "10", want: "10"},
		{src: []byte(`"llm"`), want: `"llm"`},
		{src: int64(900), want: "900"},
		{src: float64(1.5), want: "1.5"},
		{src: true, want: "true"},
	}
	for _, tc := range cases {
		var v JSONText
		if err := v.Scan(tc.src); err != nil {
			t.Fatalf("scan %v: %v", tc.src, err)
		}
		if string(v) != tc.want {
			t.Fatalf("scan %v: expected %s, got %s", tc.src, tc.want, v)
		}
	}
	var v JSONText
	if err := v.Scan(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported source")
	}
}

func TestJSONTextRoundTripsThroughHTTPBodies(t *testing.T) {
	var body struct {
		Value JSONText `json:"value"`
	}
	if err := json.Unmarshal([]byte(`{"value":{"a":1}}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	stored, err := body.Value.Value()
	if err != nil || stored != `{"a":1}` {
		t.Fatalf("expected text value, got %v %v", stored, err)
	}
	out, err := json.Marshal(Setting{Key: "K"}.Value)
	if err != nil || string(out) != "null" {
		t.Fatalf("expected empty value to encode as null, got %s %v", out, err)
	}
}
