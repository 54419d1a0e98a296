package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbright/parlando/internal/version"
)

// DefaultLightTimeout bounds a Home Assistant service call.
const DefaultLightTimeout = 2 * time.Second

// Light switches one Home Assistant light entity through the REST API.
type Light struct {
	BaseURL    string
	Token      string
	EntityID   string
	HTTPClient *http.Client
}

func NewLight(baseURL string, token string, entityID string, timeout time.Duration) *Light {
	if timeout <= 0 {
		timeout = DefaultLightTimeout
	}
	return &Light{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		EntityID:   entityID,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (l *Light) Definition() Definition {
	return Definition{
		Name:        "toggle_light",
		Description: fmt.Sprintf("Instantly turn the %s on or off via Home Assistant.", l.label()),
		Parameters: []Parameter{{
			Name:        "action",
			Type:        "string",
			Description: "'on' or 'off'",
			Enum:        []string{"on", "off"},
			Required:    true,
		}},
		Direct: true,
	}
}

func (l *Light) Invoke(ctx context.Context, args map[string]any) string {
	action := strings.ToLower(strings.TrimSpace(StringArg(args, "action")))
	if action != "on" && action != "off" {
		return "Please specify on or off, sir."
	}
	name := l.label()

	status, err := l.call(ctx, action)
	switch {
	case err == nil && status == http.StatusOK:
		return fmt.Sprintf("The %s is now %s, sir.", name, action)
	case err == nil:
		return fmt.Sprintf("I attempted to turn %s the %s, but Home Assistant returned %d.", action, name, status)
	case errors.Is(err, errResponseTimeout):
		// The request reached Home Assistant; lights usually switch even when
		// the response is slow.
		return fmt.Sprintf("The %s should now be %s, sir.", name, action)
	default:
		return fmt.Sprintf("I couldn't reach Home Assistant just now, sir. The %s may not have changed.", name)
	}
}

var errResponseTimeout = errors.New("home assistant response timed out")

func (l *Light) call(ctx context.Context, action string) (int, error) {
	payload, err := json.Marshal(map[string]string{"entity_id": l.EntityID})
	if err != nil {
		return 0, err
	}

	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	url := fmt.Sprintf("%s/api/services/light/turn_%s", l.BaseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+l.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	client := l.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultLightTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if wrote.Load() && errors.As(err, &netErr) && netErr.Timeout() {
			return 0, errors.Join(errResponseTimeout, err)
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

// label turns "light.office_light" into "office light".
func (l *Light) label() string {
	id := l.EntityID
	if idx := strings.IndexByte(id, '.'); idx >= 0 {
		id = id[idx+1:]
	}
	id = strings.TrimSpace(strings.ReplaceAll(id, "_", " "))
	if id == "" {
		return "light"
	}
	if !strings.HasSuffix(id, "light") && !strings.HasSuffix(id, "lights") && !strings.HasSuffix(id, "lamp") {
		id += " light"
	}
	return id
}

// Ping checks that the API answers with the configured token.
func (l *Light) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/api/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+l.Token)
	client := l.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultLightTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("home assistant returned HTTP %d", resp.StatusCode)
	}
	return nil
}
