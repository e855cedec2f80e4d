package presets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// HTTPStore keeps presets in a remote key-value service under
// "<prefix>/<name>".
type HTTPStore struct {
	baseURL    string
	apiKey     string
	prefix     string
	httpClient *http.Client
}

func NewHTTPStore(baseURL, apiKey, prefix string) *HTTPStore {
	if prefix == "" {
		prefix = "imgnamer/presets"
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		prefix:  strings.Trim(prefix, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// nodeRequest is the body for PUT /kv/{key}.
type nodeRequest struct {
	Value  any    `json:"value"`
	Source string `json:"source,omitempty"`
}

// nodeResponse is one node from GET /kv/{key} or a prefix scan.
type nodeResponse struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

func (s *HTTPStore) key(name string) string {
	return s.prefix + "/" + url.PathEscape(name)
}

func (s *HTTPStore) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	return req, nil
}

func (s *HTTPStore) Put(ctx context.Context, p Preset) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	body, err := json.Marshal(nodeRequest{Value: p, Source: "imgnamer"})
	if err != nil {
		return fmt.Errorf("marshal preset: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPut, s.baseURL+"/kv/"+s.key(p.Name), body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put preset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("put preset %s: status %d: %s", p.Name, resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *HTTPStore) Get(ctx context.Context, name string) (*Preset, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.baseURL+"/kv/"+s.key(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get preset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get preset %s: status %d: %s", name, resp.StatusCode, string(respBody))
	}

	var node nodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, fmt.Errorf("decode preset: %w", err)
	}
	var p Preset
	if err := json.Unmarshal(node.Value, &p); err != nil {
		return nil, fmt.Errorf("decode preset %s: %w", name, err)
	}
	p.Name = name
	return &p, nil
}

func (s *HTTPStore) Delete(ctx context.Context, name string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, s.baseURL+"/kv/"+s.key(name), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("delete preset %s: status %d: %s", name, resp.StatusCode, string(respBody))
}

// List does a prefix scan under the store prefix.
func (s *HTTPStore) List(ctx context.Context) ([]Preset, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.baseURL+"/kv/"+s.prefix+"/*", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list presets: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Nodes []nodeResponse `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	out := make([]Preset, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		var p Preset
		if err := json.Unmarshal(n.Value, &p); err != nil {
			continue
		}
		if p.Name == "" {
			name := n.Key[strings.LastIndex(n.Key, "/")+1:]
			p.Name, _ = url.PathUnescape(name)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close releases idle connections.
func (s *HTTPStore) Close() {
	s.httpClient.CloseIdleConnections()
}
