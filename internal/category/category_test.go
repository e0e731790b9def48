package category

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"contracts", Contracts, false},
		{"  Policies ", Policies, false},
		{"STANDARDS", Standards, false},
		{"records", Records, false},
		{"iso; DROP TABLE pages_contracts", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, apperrors.ErrUnknownCategory) {
				t.Errorf("Parse(%q) error = %v, want ErrUnknownCategory", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Parse(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestAllOrderAndTables(t *testing.T) {
	got := All()
	want := []string{"contracts", "policies", "records", "standards"}
	if len(got) != len(want) {
		t.Fatalf("All() returned %d categories", len(got))
	}
	seen := map[string]bool{}
	for i, c := range got {
		if c.String() != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, c, want[i])
		}
		if seen[c.Table()] {
			t.Errorf("duplicate table %s", c.Table())
		}
		seen[c.Table()] = true
	}
}

func TestJSONRoundTripsByName(t *testing.T) {
	b, err := json.Marshal(struct{ C Category }{Standards})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"C":"standards"}` {
		t.Errorf("marshal = %s", b)
	}
	var v struct{ C Category }
	if err := json.Unmarshal([]byte(`{"C":"bogus"}`), &v); err == nil {
		t.Error("expected error for unknown category")
	}
}
