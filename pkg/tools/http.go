package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/spf13/cast"
)

// HTTPRequest performs an HTTP request described by its arguments:
// method, url, params, headers, json, data, timeout, auth ([user, password])
// and allow_redirects. Transport failures become an http_error envelope.
func HTTPRequest(ctx context.Context, args map[string]any) (any, error) {
	method := strings.ToUpper(cast.ToString(args["method"]))
	if method == "" {
		method = http.MethodGet
	}
	rawURL := cast.ToString(args["url"])
	if rawURL == "" {
		return nil, errors.New("http.request: url is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("http.request: invalid url: %w", err)
	}
	if params, ok := args["params"].(map[string]any); ok {
		q := u.Query()
		for k, v := range params {
			q.Set(k, cast.ToString(v))
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := requestBody(args)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("http.request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, cast.ToString(v))
		}
	}
	if auth, ok := args["auth"].([]any); ok && len(auth) == 2 {
		req.SetBasicAuth(cast.ToString(auth[0]), cast.ToString(auth[1]))
	}

	client := &http.Client{}
	if t, ok := args[domain.KeyTimeout]; ok && t != nil {
		if secs := cast.ToFloat64(t); secs > 0 {
			client.Timeout = time.Duration(secs * float64(time.Second))
		}
	}
	if allow, ok := args["allow_redirects"]; ok && !cast.ToBool(allow) {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.ErrorOutput("http_error", err.Error(), 0), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrorOutput("http_error", err.Error(), resp.StatusCode), nil
	}

	text := string(raw)
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = nil
	}
	var result any = text
	if parsed != nil {
		result = parsed
	}
	return domain.NewOutput(resp.StatusCode, parsed, text, extractItems(parsed), result), nil
}

func requestBody(args map[string]any) (io.Reader, string, error) {
	if j, ok := args[domain.KeyJSON]; ok && j != nil {
		b, err := json.Marshal(j)
		if err != nil {
			return nil, "", fmt.Errorf("http.request: encode json body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
	switch d := args["data"].(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(d), "", nil
	case map[string]any:
		form := url.Values{}
		for k, v := range d {
			form.Set(k, cast.ToString(v))
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return strings.NewReader(cast.ToString(d)), "", nil
	}
}

func extractItems(payload any) any {
	switch p := payload.(type) {
	case []any:
		return p
	case map[string]any:
		for _, key := range []string{"items", "results", "data"} {
			if list, ok := p[key].([]any); ok {
				return list
			}
		}
	}
	return nil
}

// httpFactory serves every http tool with HTTPRequest. Defaults such as url
// or headers come from the tool config.
func httpFactory(config.Tool) (registry.ToolFunction, error) {
	return HTTPRequest, nil
}
