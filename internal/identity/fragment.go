package identity

import (
	"net/url"
	"strings"
)

// FragmentTokens are the tokens an implicit-flow redirect leaves in the URL fragment.
type FragmentTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    string
	TokenType    string
}

// ParseFragment extracts implicit-flow tokens from a URL fragment. The leading
// "#" is optional. It reports false unless the fragment carries an access token.
func ParseFragment(fragment string) (FragmentTokens, bool) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if !strings.Contains(fragment, "access_token") {
		return FragmentTokens{}, false
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return FragmentTokens{}, false
	}

	tokens := FragmentTokens{
		AccessToken:  strings.TrimSpace(values.Get("access_token")),
		RefreshToken: strings.TrimSpace(values.Get("refresh_token")),
		ExpiresIn:    values.Get("expires_in"),
		TokenType:    values.Get("token_type"),
	}
	if tokens.AccessToken == "" {
		return FragmentTokens{}, false
	}
	return tokens, true
}

// FragmentFromURL returns the fragment of rawURL without the "#".
func FragmentFromURL(rawURL string) string {
	_, fragment, found := strings.Cut(rawURL, "#")
	if !found {
		return ""
	}
	return fragment
}

// StripFragment returns rawURL without its fragment.
func StripFragment(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, "#")
	return base
}
