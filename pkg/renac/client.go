package renac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/renacsync/pkg/common"
	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/types"
)

const (
	loginPath        = "api/user/login"
	stationListPath  = "api/station/list"
	deviceListPath   = "bg/equList"
	powerFlowPath    = "api/home/station/powerFlow"
	overviewPath     = "api/station/storage/overview"
	savingsPath      = "api/station/all/savings"
	deviceDetailPath = "bg/inv/detail"

	// pageRows is the fixed page size for every list call. Stations and
	// devices beyond the first page are not discovered.
	pageRows = 10

	defaultBaseURL = "http://153.le-pv.com:8082/"
)

// Client implements the Cloud interface against the Renac HTTP API.
type Client struct {
	client   *http.Client
	baseURL  string
	location *time.Location
}

var _ Cloud = (*Client)(nil)

// NewClient returns a client talking to baseURL.
func NewClient(baseURL string, timeout time.Duration, loc *time.Location) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		client:   common.HTTPClient(timeout),
		baseURL:  baseURL,
		location: loc,
	}
}

// Location returns the time zone used for date parameters.
func (c *Client) Location() *time.Location {
	return c.location
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", string(b), err)
	}
	*f = flexInt(n)
	return nil
}

type renacResponse struct {
	Code    flexInt         `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	User    *struct {
		Token string `json:"token"`
	} `json:"user"`
}

func (c *Client) endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (c *Client) newPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newPostFormRequest(ctx context.Context, endpoint string, data url.Values) (*http.Request, error) {
	u, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// doRequest sends req and decodes the response envelope. A session token is
// attached when sess is non-nil. Any code other than 1 is an error regardless
// of the HTTP status.
func (c *Client) doRequest(req *http.Request, sess *types.Session) (renacResponse, error) {
	ctx := req.Context()
	if sess != nil {
		req.Header.Set("token", sess.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return renacResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return renacResponse{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return renacResponse{}, err
	}

	var rr renacResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode renac response", slog.Any("error", err), slog.String("body", string(body)))
		return renacResponse{}, fmt.Errorf("failed to decode renac response: %w", err)
	}

	if rr.Code != 1 {
		msg := rr.Msg
		if msg == "" {
			msg = rr.Message
		}
		log.Ctx(ctx).WarnContext(ctx, "renac api error", slog.Int("code", int(rr.Code)), slog.String("message", msg), slog.String("path", req.URL.Path))
		return renacResponse{}, &CodeError{Code: int(rr.Code), Message: msg}
	}
	return rr, nil
}

// Login authenticates the user and returns the session for this cycle.
func (c *Client) Login(ctx context.Context, username, password string) (types.Session, error) {
	if username == "" {
		return types.Session{}, &AuthError{Err: errors.New("missing username")}
	}
	if password == "" {
		return types.Session{}, &AuthError{Err: errors.New("missing password")}
	}

	req, err := c.newPostJSONRequest(ctx, loginPath, map[string]interface{}{
		"login_name": username,
		"pwd":        password,
	})
	if err != nil {
		return types.Session{}, &AuthError{Err: err}
	}

	rr, err := c.doRequest(req, nil)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "renac login failed", slog.Any("error", err))
		return types.Session{}, &AuthError{Err: err}
	}

	var userID flexInt
	if err := json.Unmarshal(rr.Data, &userID); err != nil {
		return types.Session{}, &AuthError{Err: fmt.Errorf("invalid user id: %w", err)}
	}
	if rr.User == nil || rr.User.Token == "" {
		return types.Session{}, &AuthError{Err: errors.New("missing token in login response")}
	}
	log.Ctx(ctx).DebugContext(ctx, "renac login success", slog.String("username", username), slog.Int("userID", int(userID)))

	return types.Session{
		Token:  rr.User.Token,
		UserID: int(userID),
	}, nil
}

type stationListResult struct {
	List []struct {
		StationID flexInt `json:"station_id"`
	} `json:"list"`
}

// ListStations returns the first page of stations for the session's user.
func (c *Client) ListStations(ctx context.Context, sess types.Session) ([]types.Station, error) {
	req, err := c.newPostJSONRequest(ctx, stationListPath, map[string]interface{}{
		"user_id": sess.UserID,
		"offset":  0,
		"rows":    pageRows,
	})
	if err != nil {
		return nil, &DiscoveryError{Op: "station list", Err: err}
	}

	rr, err := c.doRequest(req, &sess)
	if err != nil {
		return nil, &DiscoveryError{Op: "station list", Err: err}
	}

	var res stationListResult
	if err := json.Unmarshal(rr.Data, &res); err != nil {
		return nil, &DiscoveryError{Op: "station list", Err: fmt.Errorf("failed to decode station list: %w", err)}
	}

	stations := make([]types.Station, 0, len(res.List))
	for _, s := range res.List {
		stations = append(stations, types.Station{ID: int(s.StationID)})
	}
	if len(stations) == pageRows {
		log.Ctx(ctx).WarnContext(ctx, "station list is a full page, further stations are not discovered", slog.Int("rows", pageRows))
	}
	return stations, nil
}

type deviceListResult struct {
	List []struct {
		Serial string `json:"INV_SN"`
	} `json:"list"`
}

// ListDevices returns the first page of inverters for a station.
func (c *Client) ListDevices(ctx context.Context, sess types.Session, stationID int) ([]types.Device, error) {
	req, err := c.newPostJSONRequest(ctx, deviceListPath, map[string]interface{}{
		"user_id":    sess.UserID,
		"station_id": stationID,
		"status":     "",
		"offset":     0,
		"rows":       pageRows,
		"equ_sn":     "",
	})
	if err != nil {
		return nil, &DiscoveryError{Op: "device list", StationID: stationID, Err: err}
	}

	rr, err := c.doRequest(req, &sess)
	if err != nil {
		return nil, &DiscoveryError{Op: "device list", StationID: stationID, Err: err}
	}

	var res deviceListResult
	if err := json.Unmarshal(rr.Data, &res); err != nil {
		return nil, &DiscoveryError{Op: "device list", StationID: stationID, Err: fmt.Errorf("failed to decode device list: %w", err)}
	}

	devices := make([]types.Device, 0, len(res.List))
	for _, d := range res.List {
		if d.Serial == "" {
			continue
		}
		devices = append(devices, types.Device{Serial: d.Serial, StationID: stationID})
	}
	return devices, nil
}

// PowerFlow is the only endpoint that expects a form-encoded body.
func (c *Client) PowerFlow(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	data := url.Values{}
	data.Set("station_id", strconv.Itoa(stationID))

	req, err := c.newPostFormRequest(ctx, powerFlowPath, data)
	if err != nil {
		return nil, &TelemetryError{Kind: KindPowerFlow, ScopeID: stationScope(stationID), Err: err}
	}
	return c.telemetry(req, sess, KindPowerFlow, stationScope(stationID))
}

func (c *Client) Overview(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	req, err := c.newPostJSONRequest(ctx, overviewPath, map[string]interface{}{
		"station_id": stationID,
	})
	if err != nil {
		return nil, &TelemetryError{Kind: KindOverview, ScopeID: stationScope(stationID), Err: err}
	}
	return c.telemetry(req, sess, KindOverview, stationScope(stationID))
}

func (c *Client) Savings(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	req, err := c.newPostJSONRequest(ctx, savingsPath, map[string]interface{}{
		"station_id": stationID,
	})
	if err != nil {
		return nil, &TelemetryError{Kind: KindSavings, ScopeID: stationScope(stationID), Err: err}
	}
	return c.telemetry(req, sess, KindSavings, stationScope(stationID))
}

// DeviceDetail requests the inverter detail for day, formatted in the
// client's location. Only the "im" member of the result is returned.
func (c *Client) DeviceDetail(ctx context.Context, sess types.Session, serial string, day time.Time) (json.RawMessage, error) {
	req, err := c.newPostJSONRequest(ctx, deviceDetailPath, map[string]interface{}{
		"equ_sn": serial,
		"offset": 0,
		"rows":   pageRows,
		"time":   day.In(c.location).Format(time.DateOnly),
	})
	if err != nil {
		return nil, &TelemetryError{Kind: KindDeviceDetail, ScopeID: serial, Err: err}
	}

	data, err := c.telemetry(req, sess, KindDeviceDetail, serial)
	if err != nil {
		return nil, err
	}

	var res struct {
		IM json.RawMessage `json:"im"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &TelemetryError{Kind: KindDeviceDetail, ScopeID: serial, Err: fmt.Errorf("failed to decode device detail: %w", err)}
	}
	im, err := firstElement(res.IM)
	if err != nil {
		return nil, &TelemetryError{Kind: KindDeviceDetail, ScopeID: serial, Err: fmt.Errorf("failed to decode device detail: %w", err)}
	}
	return im, nil
}

func (c *Client) telemetry(req *http.Request, sess types.Session, kind TelemetryKind, scope string) (json.RawMessage, error) {
	rr, err := c.doRequest(req, &sess)
	if err != nil {
		return nil, &TelemetryError{Kind: kind, ScopeID: scope, Err: err}
	}
	log.Ctx(req.Context()).DebugContext(req.Context(), "renac telemetry fetched", slog.String("kind", string(kind)), slog.String("scope", scope), slog.Int("bytes", len(rr.Data)))
	return rr.Data, nil
}

// firstElement unwraps a JSON array to its first element. Objects and empty
// values are returned unchanged.
func firstElement(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, nil
	}
	return elems[0], nil
}
