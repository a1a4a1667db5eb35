package identity

import "testing"

func TestParseFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     FragmentTokens
		ok       bool
	}{
		{
			name:     "with hash",
			fragment: "#access_token=aaa&refresh_token=rrr&expires_in=3600&token_type=bearer",
			want:     FragmentTokens{AccessToken: "aaa", RefreshToken: "rrr", ExpiresIn: "3600", TokenType: "bearer"},
			ok:       true,
		},
		{
			name:     "without hash",
			fragment: "access_token=aaa",
			want:     FragmentTokens{AccessToken: "aaa"},
			ok:       true,
		},
		{
			name:     "no marker",
			fragment: "#section-2",
			ok:       false,
		},
		{
			name:     "empty access token",
			fragment: "#access_token=&refresh_token=rrr",
			ok:       false,
		},
		{
			name:     "empty",
			fragment: "",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFragment(tt.fragment)
			if ok != tt.ok {
				t.Fatalf("ParseFragment(%q) ok = %v, want %v", tt.fragment, ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("ParseFragment(%q) = %+v, want %+v", tt.fragment, got, tt.want)
			}
		})
	}
}

func TestFragmentHelpers(t *testing.T) {
	raw := "http://localhost:3000/collections?x=1#access_token=aaa"

	if got := FragmentFromURL(raw); got != "access_token=aaa" {
		t.Fatalf("FragmentFromURL = %q", got)
	}
	if got := StripFragment(raw); got != "http://localhost:3000/collections?x=1" {
		t.Fatalf("StripFragment = %q", got)
	}
	if got := FragmentFromURL("http://localhost:3000/"); got != "" {
		t.Fatalf("expected empty fragment, got %q", got)
	}
}
