// Package smartconnect is a minimal Angel One SmartAPI REST client covering
// login, token refresh, profile and historical candle data.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PASSWORD", "123456"); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := sc.GetCandleData(ctx, smartconnect.CandleParams{
//	    Exchange: "NSE", SymbolToken: "99926000", Interval: "FIVE_MINUTE",
//	    From: from, To: to,
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrToken is returned when the API rejects the session tokens.
var ErrToken = errors.New("smartconnect: token rejected")

// ---- Config & client ----

type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string

	RootURL        string        // default: https://apiconnect.angelone.in
	Debug          bool
	Timeout        time.Duration // default: 7s
	HTTPClient     *http.Client  // optional; overrides Timeout
	Accept         string        // default: application/json
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default: 106.193.147.98
	ClientLocalIP  string        // default: first non-loopback IPv4, else 127.0.0.1
	ClientMAC      string        // default: first interface MAC
}

type SmartConnect struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL string
	debug   bool

	httpClient *http.Client

	// header fields
	accept   string
	userType string
	sourceID string

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string
}

const (
	defaultRoot     = "https://apiconnect.angelone.in"
	defaultPublicIP = "106.193.147.98"

	// CandleTimeLayout is the layout of fromdate/todate in candle requests.
	CandleTimeLayout = "2006-01-02 15:04"
)

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// tokenErrorCodes are the SmartAPI error codes that mean the JWT is invalid
// or expired.
var tokenErrorCodes = map[string]bool{
	"AG8001": true, // invalid token
	"AG8002": true, // token expired
	"AB1010": true, // session expired
}

// GetLocalIP finds the first non-loopback IPv4 address.
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

// NewSmartConnect initializes the client.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = defaultPublicIP
	}
	if cfg.ClientLocalIP == "" {
		localIP, err := GetLocalIP()
		if err != nil {
			slog.Debug("[smartconnect] local IP lookup failed", slog.Any("error", err))
		}
		cfg.ClientLocalIP = firstNonEmpty(localIP, "127.0.0.1")
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMACFallback()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		refreshToken:   cfg.RefreshToken,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     client,
		accept:         cfg.Accept,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getMACFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", sc.accept)
	h.Set("Accept", sc.accept)
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if sc.accessToken != "" {
		h.Set("Authorization", "Bearer "+sc.accessToken)
	}
	return h
}

func (sc *SmartConnect) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	return sc.rootURL + uri, nil
}

// post sends params as a JSON body and decodes the JSON envelope. Token
// failures (HTTP 401/403 or a known token error code) wrap ErrToken.
func (sc *SmartConnect) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	fullURL, err := sc.buildURL(route)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	if sc.debug {
		slog.Debug("[smartconnect] request", slog.String("route", route), slog.String("url", fullURL))
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartconnect %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("smartconnect %s: read body: %w", route, err)
	}

	if sc.debug {
		slog.Debug("[smartconnect] response", slog.String("route", route), slog.Int("code", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s returned %d", ErrToken, route, resp.StatusCode)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("smartconnect %s: couldn't parse JSON response (status %d): %w", route, resp.StatusCode, err)
	}
	if et, ok := out["error_type"].(string); ok && et != "" {
		msg, _ := out["message"].(string)
		if et == "TokenException" {
			return out, fmt.Errorf("%w: %s", ErrToken, msg)
		}
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	if st, ok := out["status"].(bool); ok && !st {
		msg, _ := out["message"].(string)
		code, _ := out["errorcode"].(string)
		if tokenErrorCodes[code] {
			return out, fmt.Errorf("%w: %s %s", ErrToken, code, msg)
		}
		return out, fmt.Errorf("smartconnect %s: %s %s", route, code, msg)
	}
	if resp.StatusCode >= 300 {
		return out, fmt.Errorf("smartconnect %s: status %d", route, resp.StatusCode)
	}
	return out, nil
}

// ---- Setters/Getters ----

func (sc *SmartConnect) SetUserID(id string)      { sc.userID = id }
func (sc *SmartConnect) GetUserID() string        { return sc.userID }
func (sc *SmartConnect) SetAccessToken(t string)  { sc.accessToken = t }
func (sc *SmartConnect) SetRefreshToken(t string) { sc.refreshToken = t }
func (sc *SmartConnect) GetFeedToken() string     { return sc.feedToken }
func (sc *SmartConnect) HasSession() bool         { return sc.accessToken != "" }

// ---- API Methods ----

// GenerateSession logs in with client code, password and a current TOTP,
// stores the issued tokens and returns the user profile payload.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) (map[string]any, error) {
	sc.accessToken = ""
	params := map[string]any{"clientcode": clientCode, "password": password, "totp": totp}
	res, err := sc.post(ctx, "api.login", params)
	if err != nil {
		return res, fmt.Errorf("login: %w", err)
	}

	data, ok := res["data"].(map[string]any)
	if !ok {
		return res, errors.New("login: unexpected response format")
	}

	jwtToken, _ := data["jwtToken"].(string)
	refreshToken, _ := data["refreshToken"].(string)
	feedToken, _ := data["feedToken"].(string)
	if jwtToken == "" {
		return res, errors.New("login: empty jwtToken")
	}

	sc.accessToken = jwtToken
	sc.refreshToken = refreshToken
	sc.feedToken = feedToken

	user, err := sc.GetProfile(ctx, refreshToken)
	if err != nil {
		return user, err
	}
	if udata, ok := user["data"].(map[string]any); ok {
		if cc, _ := udata["clientcode"].(string); cc != "" {
			sc.SetUserID(cc)
		}
	}
	return user, nil
}

// GenerateToken exchanges the refresh token for a new JWT.
func (sc *SmartConnect) GenerateToken(ctx context.Context) (map[string]any, error) {
	res, err := sc.post(ctx, "api.token", map[string]any{"refreshToken": sc.refreshToken})
	if err != nil {
		return res, err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if jwt, _ := data["jwtToken"].(string); jwt != "" {
			sc.accessToken = jwt
		}
		if ft, _ := data["feedToken"].(string); ft != "" {
			sc.feedToken = ft
		}
	}
	return res, nil
}

func (sc *SmartConnect) GetProfile(ctx context.Context, refreshToken string) (map[string]any, error) {
	return sc.post(ctx, "api.user.profile", map[string]any{"refreshToken": refreshToken})
}

func (sc *SmartConnect) TerminateSession(ctx context.Context, clientCode string) (map[string]any, error) {
	res, err := sc.post(ctx, "api.logout", map[string]any{"clientcode": clientCode})
	sc.accessToken = ""
	return res, err
}

// CandleParams selects a historical candle range.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string // ONE_MINUTE, FIVE_MINUTE, ...
	From, To    time.Time
}

// Candle is one row of getCandleData output.
type Candle struct {
	TS                     time.Time
	Open, High, Low, Close float64
	Volume                 int64
}

// GetCandleData fetches OHLCV candles. Rows arrive as
// [timestamp, open, high, low, close, volume].
func (sc *SmartConnect) GetCandleData(ctx context.Context, p CandleParams) ([]Candle, error) {
	res, err := sc.post(ctx, "api.candle.data", map[string]any{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.From.Format(CandleTimeLayout),
		"todate":      p.To.Format(CandleTimeLayout),
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res["data"].([]any)
	out := make([]Candle, 0, len(rows))
	for i, r := range rows {
		c, err := parseCandle(r)
		if err != nil {
			return nil, fmt.Errorf("candle row %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandle(r any) (Candle, error) {
	row, ok := r.([]any)
	if !ok || len(row) < 6 {
		return Candle{}, errors.New("malformed row")
	}
	s, _ := row[0].(string)
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Candle{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	var vals [5]float64
	for i := range vals {
		f, ok := row[i+1].(float64)
		if !ok {
			return Candle{}, fmt.Errorf("field %d not numeric", i+1)
		}
		vals[i] = f
	}
	return Candle{
		TS:     ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: int64(vals[4]),
	}, nil
}
