package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
)

type dcClient struct {
	cfg        Config
	httpClient *http.Client

	throttleMutex sync.Mutex
	lastRequest   time.Time

	// Read cache. Writes invalidate the affected issue.
	cache      map[string]*cacheEntry
	cacheMutex sync.RWMutex
}

type cacheEntry struct {
	value      any
	expiration time.Time
}

func NewDataCenterClient(cfg Config) Client {
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = 500 * time.Millisecond
	}
	return &dcClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		cache: make(map[string]*cacheEntry),
	}
}

func (c *dcClient) getFromCache(key string) (any, bool) {
	c.cacheMutex.RLock()
	defer c.cacheMutex.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiration) {
		return nil, false
	}
	log.Debug().Str("key", key).Msg("Jira cache hit")
	return entry.value, true
}

func (c *dcClient) addToCache(key string, value any, ttl time.Duration) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache[key] = &cacheEntry{value: value, expiration: time.Now().Add(ttl)}
}

func (c *dcClient) invalidate(key string) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	delete(c.cache, key)
}

// throttle spaces out write requests; reads are allowed to burst.
func (c *dcClient) throttle(isRead bool) {
	c.throttleMutex.Lock()
	defer c.throttleMutex.Unlock()

	if isRead {
		c.lastRequest = time.Now()
		return
	}

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.cfg.RequestDelay {
		wait := c.cfg.RequestDelay - elapsed
		log.Debug().Dur("wait", wait).Msg("Throttling Jira request")
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

func (c *dcClient) authenticateRequest(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		return
	}

	cookies := []struct {
		name  string
		value string
	}{
		{"atlassian.xsrf.token", c.cfg.XsrfToken},
		{"JSESSIONID", c.cfg.SessionID},
		{"seraph.rememberme.cookie", c.cfg.RememberMe},
	}

	var cookiePairs []string
	for _, cookie := range cookies {
		if cookie.value != "" {
			// Built manually to avoid net/http's strict RFC 6265 validation,
			// which drops valid Jira cookies containing double quotes.
			cookiePairs = append(cookiePairs, fmt.Sprintf("%s=%s", cookie.name, cookie.value))
		}
	}
	if len(cookiePairs) > 0 {
		req.Header.Set("Cookie", strings.Join(cookiePairs, "; "))
	}
}

// do issues the request and maps non-2xx statuses onto domain errors.
func (c *dcClient) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return domain.JiraTransport(op, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return domain.JiraTransport(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authenticateRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.JiraTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return domain.NotFound("jira_issue", path)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.JiraTransport(op, fmt.Errorf("authentication failed (%d); check the token or session cookies", resp.StatusCode))
		case http.StatusTooManyRequests:
			retryAfter := resp.Header.Get("Retry-After")
			if retryAfter != "" {
				return domain.JiraTransport(op, fmt.Errorf("rate limit exceeded (429), retry after %s seconds", retryAfter))
			}
			return domain.JiraTransport(op, fmt.Errorf("rate limit exceeded (429)"))
		default:
			return domain.JiraTransport(op, fmt.Errorf("Jira returned status %d", resp.StatusCode))
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.JiraTransport(op, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

func (c *dcClient) CreateEpic(ctx context.Context, in CreateEpicInput) (*Issue, error) {
	return c.create(ctx, createRequest{
		Fields: createFields{
			Project:     ProjectField{Key: in.ProjectKey},
			Summary:     in.Summary,
			Description: in.Description,
			IssueType:   issueTypeName{Name: "Epic"},
		},
	}, "create_epic")
}

func (c *dcClient) CreateIssue(ctx context.Context, in CreateIssueInput) (*Issue, error) {
	issueType := in.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	return c.create(ctx, createRequest{
		Fields: createFields{
			Project:     ProjectField{Key: in.ProjectKey},
			Summary:     in.Summary,
			Description: in.Description,
			IssueType:   issueTypeName{Name: issueType},
			EpicLink:    in.EpicKey,
		},
	}, "create_issue")
}

func (c *dcClient) create(ctx context.Context, req createRequest, op string) (*Issue, error) {
	c.throttle(false)

	var created createResponse
	if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", req, &created, op); err != nil {
		return nil, err
	}
	log.Info().Str("key", created.Key).Str("op", op).Msg("Created Jira issue")

	// Re-read so the caller sees server-assigned fields, the updated
	// timestamp above all.
	return c.GetIssue(ctx, created.Key)
}

func (c *dcClient) UpdateIssue(ctx context.Context, key, summary, description string) error {
	c.throttle(false)

	req := updateRequest{Fields: updateFields{Summary: summary, Description: description}}
	if err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key, req, nil, "update_issue"); err != nil {
		return err
	}
	c.invalidate("issue:" + key)
	log.Debug().Str("key", key).Msg("Updated Jira issue")
	return nil
}

func (c *dcClient) GetIssue(ctx context.Context, key string) (*Issue, error) {
	cacheKey := "issue:" + key
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.(*Issue), nil
	}

	c.throttle(true)

	var issue Issue
	path := "/rest/api/2/issue/" + key + "?fields=summary,description,status,project,updated"
	if err := c.do(ctx, http.MethodGet, path, nil, &issue, "get_issue"); err != nil {
		return nil, err
	}

	c.addToCache(cacheKey, &issue, time.Minute)
	return &issue, nil
}

func (c *dcClient) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	cacheKey := "transitions:" + key
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.([]Transition), nil
	}

	c.throttle(true)

	var resp transitionsResponse
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key+"/transitions", nil, &resp, "get_transitions"); err != nil {
		return nil, err
	}

	c.addToCache(cacheKey, resp.Transitions, 5*time.Minute)
	return resp.Transitions, nil
}

func (c *dcClient) TransitionIssue(ctx context.Context, key, transitionID string) error {
	c.throttle(false)

	var req transitionRequest
	req.Transition.ID = transitionID
	if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/transitions", req, nil, "transition_issue"); err != nil {
		return err
	}
	c.invalidate("issue:" + key)
	c.invalidate("transitions:" + key)
	log.Debug().Str("key", key).Str("transition", transitionID).Msg("Transitioned Jira issue")
	return nil
}
