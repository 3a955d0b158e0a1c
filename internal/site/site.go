// Package site knows the happyslap.tv surface: URLs, selectors and scripts.
package site

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CSS / text selectors, as rendered by the site.
const (
	UsernameInput = "input[placeholder='Username or Email']"
	PasswordInput = "input[placeholder='Password']"
	LoginButton   = "button:has-text('Login')"

	SearchInput    = `input[class*="font-roboto"][class*="rounded-lg"]`
	ResultGrid     = `[class*="grid-cols-3"]`
	ResultCards    = `[class*="grid-cols-3"] > div`
	HostGameButton = `button:has-text("Host Game")`

	JoinCodeHeading = "h1.text-hs-green.font-londrina"
	PlayerTiles     = `[class*="grid-cols-4"] > div`
	StartButton     = `[class*="generic-button"][class*="bg-hs-green"]`
	RestartButton   = `text="Restart Game"`
)

// Local-storage keys the game client caches between rounds.
var StaleStorageKeys = []string{"base", "trivia"}

const Tagline = "HappySlap.tv - The best place for party games!"

type Site struct {
	base     string
	joinCode *regexp.Regexp
}

func New(baseURL string) Site {
	base := strings.TrimRight(baseURL, "/")
	return Site{
		base:     base,
		joinCode: regexp.MustCompile("^" + regexp.QuoteMeta(base) + `/trivia/host/([A-Z0-9]{5})/.*`),
	}
}

func (s Site) BaseURL() string     { return s.base }
func (s Site) LoginURL() string    { return s.base + "/login" }
func (s Site) HostURL() string     { return s.base + "/host" }
func (s Site) DiscoverURL() string { return s.base + "/host/discover" }

// GameURL is the canonical host page for a party created out-of-band.
func (s Site) GameURL(gameType, partyID, gameID string) string {
	return fmt.Sprintf("%s/%s/host/%s/%s",
		s.base, url.PathEscape(gameType), url.PathEscape(partyID), url.PathEscape(gameID))
}

// JoinCodePattern matches a trivia host page: /trivia/host/<CODE>/<rest>.
func (s Site) JoinCodePattern() *regexp.Regexp { return s.joinCode }

// JoinCodeFromURL extracts the join code from a host page URL: the path
// segment following "host".
func JoinCodeFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "host" && i+1 < len(parts) && parts[i+1] != "" && parts[i+1] != "discover" {
			return parts[i+1], true
		}
	}
	return "", false
}
