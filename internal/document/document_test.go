package document

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStoredProvenanceSuffix(t *testing.T) {
	tests := []struct {
		page Page
		want string
	}{
		{Page{Number: 1, Text: "Master services agreement", Source: SourceNative}, "Master services agreement [PDF]"},
		{Page{Number: 2, Text: "scanned clause", Source: SourceImage}, "scanned clause [Image]"},
		{Page{Number: 3, Text: "", Source: SourceImage}, " [Image]"},
	}
	for _, tt := range tests {
		if got := tt.page.Stored(); got != tt.want {
			t.Errorf("Stored() = %q, want %q", got, tt.want)
		}
	}
}

func TestResultFormatsAsStruct(t *testing.T) {
	ok := Result{Filename: "lease.pdf", Outcome: OutcomeInserted, Pages: 3}
	if _, isErr := any(ok).(error); isErr {
		t.Fatal("Result must not satisfy error")
	}
	if got := fmt.Sprintf("%+v", ok); !strings.Contains(got, "lease.pdf") {
		t.Errorf("%%+v = %q, want the fields", got)
	}
	if ok.ErrMessage() != "" {
		t.Errorf("ErrMessage() = %q, want empty", ok.ErrMessage())
	}
	failed := Result{Filename: "bad.pdf", Err: errors.New("no trailer")}
	if failed.ErrMessage() != "no trailer" {
		t.Errorf("ErrMessage() = %q", failed.ErrMessage())
	}
}
