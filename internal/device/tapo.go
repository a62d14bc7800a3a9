package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codeberg.org/mutker/tapometer/internal/errors"
	"codeberg.org/mutker/tapometer/internal/logger"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 1 << 20

// TapoPort talks to Tapo-style smart plugs over their local HTTP endpoint.
// The wire format is the plug's JSON-RPC style /app endpoint: a login call
// that yields a request token, then get_energy_usage calls that report
// current_power in milliwatts. Authentication is the plain local variant;
// the hardened handshake some firmware revisions require is out of scope.
type TapoPort struct {
	client *http.Client
}

func NewTapoPort() *TapoPort {
	return &TapoPort{
		// Per-call deadlines come from the caller's context
		client: &http.Client{},
	}
}

func (p *TapoPort) Connect(ctx context.Context, address string, creds Credentials) (Conn, error) {
	errFactory := errors.New()

	baseURL := endpointURL(address)
	payload := map[string]any{
		"method": "login_device",
		"params": map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		},
	}

	body, err := p.roundTrip(ctx, baseURL, payload)
	if err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	if code := gjson.GetBytes(body, "error_code").Int(); code != 0 {
		return nil, errFactory.WithData(ErrLoginRejected, code)
	}

	token := gjson.GetBytes(body, "result.token")
	if !token.Exists() || token.String() == "" {
		return nil, errFactory.WithMessage(ErrBadResponse, "login response carries no token")
	}

	logger.Debug().Str("address", address).Msg("Device connection established")

	return &tapoConn{
		port: p,
		url:  baseURL + "?token=" + token.String(),
	}, nil
}

func (p *TapoPort) roundTrip(ctx context.Context, url string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func endpointURL(address string) string {
	if strings.Contains(address, "://") {
		return strings.TrimSuffix(address, "/") + "/app"
	}

	return "http://" + address + "/app"
}

type tapoConn struct {
	port *TapoPort
	url  string
}

func (c *tapoConn) ReadPower(ctx context.Context) (Milliwatts, error) {
	errFactory := errors.New()

	body, err := c.port.roundTrip(ctx, c.url, map[string]any{"method": "get_energy_usage"})
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	if code := gjson.GetBytes(body, "error_code").Int(); code != 0 {
		return 0, errFactory.WithData(ErrDeviceFault, code)
	}

	power := gjson.GetBytes(body, "result.current_power")
	if !power.Exists() {
		return 0, errFactory.WithMessage(ErrBadResponse, "energy usage response carries no current_power")
	}

	return Milliwatts(power.Int()), nil
}

func (c *tapoConn) Close() error {
	// The plug's local API is connectionless; the token simply expires.
	c.port.client.CloseIdleConnections()
	return nil
}
