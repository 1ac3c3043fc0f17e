package betfair

import "testing"

func TestCustomerRef(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{
			name: "uuid hyphens stripped",
			id:   "0b81e1a9-4f6d-4c5e-9a2b-7d93c1e4f812",
			want: "0b81e1a94f6d4c5e9a2b7d93c1e4f812",
		},
		{
			name: "long id truncated",
			id:   "0b81e1a94f6d4c5e9a2b7d93c1e4f812extra",
			want: "0b81e1a94f6d4c5e9a2b7d93c1e4f812",
		},
		{
			name: "short id unchanged",
			id:   "manual-retry-7",
			want: "manualretry7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := customerRef(tt.id); got != tt.want {
				t.Errorf("customerRef(%q) = %q, want %q", tt.id, got, tt.want)
			}
			if got := customerRef(tt.id); len(got) > 32 {
				t.Errorf("customerRef(%q) length = %d, want <= 32", tt.id, len(got))
			}
		})
	}
}
