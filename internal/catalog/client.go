// Package catalog is a minimal client for the site's game catalog endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Game struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	GameType string `json:"gameType"`
}

type Query struct {
	GameType string
	Menu     string
	Search   string
}

type listResponse struct {
	Games []Game `json:"games"`
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// ListGames fetches the games matching q. A game with no gameType inherits
// q.GameType.
func (c *Client) ListGames(ctx context.Context, token string, q Query) ([]Game, error) {
	params := url.Values{}
	params.Set("gameType", q.GameType)
	params.Set("menu", q.Menu)
	params.Set("search", q.Search)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/games?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list games: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode games: %w", err)
	}
	for i := range out.Games {
		if out.Games[i].GameType == "" {
			out.Games[i].GameType = q.GameType
		}
	}
	return out.Games, nil
}
