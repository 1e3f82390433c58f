package identity

import "testing"

func TestValueRoundTrip(t *testing.T) {
	info, err := Parse(Value())
	if err != nil {
		t.Fatalf("Parse(Value()) error = %v", err)
	}
	if info.Agent != AgentName {
		t.Errorf("Agent = %q, want %q", info.Agent, AgentName)
	}
	if info.Version != AgentVersion {
		t.Errorf("Version = %q, want %q", info.Version, AgentVersion)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{
			name:   "valid with version",
			header: `agent="custom-agent";version="2.1"`,
			want:   "custom-agent",
		},
		{
			name:   "valid without version",
			header: `agent="bare"`,
			want:   "bare",
		},
		{
			name:    "empty",
			header:  "",
			wantErr: true,
		},
		{
			name:    "missing agent key",
			header:  `profile="https://example.com"`,
			wantErr: true,
		},
		{
			name:    "non-string agent value",
			header:  `agent=42`,
			wantErr: true,
		},
		{
			name:    "malformed",
			header:  `agent="unterminated`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Parse(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.header, err)
			}
			if info.Agent != tt.want {
				t.Errorf("Agent = %q, want %q", info.Agent, tt.want)
			}
		})
	}
}
