package status

import "testing"

func TestIsPassing(t *testing.T) {
	for _, s := range All() {
		want := s == Downloadable || s == Generating
		if got := IsPassing(s); got != want {
			t.Errorf("IsPassing(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestIsRefundable(t *testing.T) {
	for _, s := range All() {
		want := s != Downloadable && s != Generating && s != Unavailable
		if got := IsRefundable(s); got != want {
			t.Errorf("IsRefundable(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "downloadable", input: "downloadable", want: Downloadable},
		{name: "audit passing", input: "audit_passing", want: AuditPassing},
		{name: "unknown status", input: "archived", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "case sensitive", input: "Downloadable", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	first := All()
	if len(first) != 15 {
		t.Fatalf("expected 15 statuses, got %d", len(first))
	}
	first[0] = "mutated"
	if All()[0] != Deleted {
		t.Error("All() exposed the package-level slice")
	}
}
