package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// cookieFile is the on-disk session format: a single object with a "cookies"
// map. Parsed with json5 because these files tend to be hand-edited.
type cookieFile struct {
	Cookies map[string]string `json:"cookies"`
}

// CookieCandidatePaths returns the paths probed for a session file, in
// order. An explicit path is probed alone.
func CookieCandidatePaths(explicit string) []string {
	if strings.TrimSpace(explicit) != "" {
		return []string{explicit}
	}
	paths := []string{
		"cookies.json",
		"/app/cookies.json",
		filepath.Join("..", "cookies.json"),
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "perplexity-bridge", "cookies.json"))
	}
	return paths
}

// LoadCookies reads the first parseable session file from the candidate
// paths. A missing or unparseable file degrades to an anonymous session
// rather than failing.
func LoadCookies(explicit string) map[string]string {
	for _, path := range CookieCandidatePaths(explicit) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed cookieFile
		if err := json5.Unmarshal(data, &parsed); err != nil {
			continue
		}
		if len(parsed.Cookies) > 0 {
			return parsed.Cookies
		}
	}
	return nil
}

// browserHeaders mimics the upstream web client. The upstream rejects
// requests that look too unlike a browser.
func browserHeaders(userAgent string) http.Header {
	h := http.Header{}
	h.Set("Accept", "text/event-stream")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", "https://www.perplexity.ai")
	h.Set("User-Agent", userAgent)
	h.Set("X-Perplexity-Request-Reason", "perplexity-query-state-provider")
	return h
}

// SessionInfo summarizes the authenticated state of a client.
type SessionInfo struct {
	HasCookies  bool   `json:"has_cookies"`
	UserID      string `json:"user_id,omitempty"`
	OwnsAccount bool   `json:"owns_account"`
}

// fetchSessionIdentity asks the upstream auth endpoint for the nextauth user
// id. Failure is non-fatal; the client just runs anonymously.
func (c *Client) fetchSessionIdentity(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/auth/session", nil)
	if err != nil {
		return
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("Session identity probe failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	var session struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return
	}
	c.userNextauthID = session.User.ID
}
