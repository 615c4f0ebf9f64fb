package n2yo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/internal/provider"
)

const (
	Name           = "n2yo"
	DefaultBaseURL = "https://api.n2yo.com/rest/v1/satellite"

	// ISSNoradID is the NORAD catalogue number of the ISS.
	ISSNoradID = 25544
)

// DefaultObserver is used when the caller gives no coordinates.
var DefaultObserver = provider.Coordinates{Latitude: 51.45, Longitude: -2.59}

// fallbackPosition is reported whenever live data is not available.
var fallbackPosition = provider.Position{
	SatelliteName: "ISS",
	Latitude:      25.2048,
	Longitude:     55.2708,
	AltitudeKm:    408.5,
}

type N2YOProvider struct {
	apiKey  string
	opts    provider.Options
	breaker *gobreaker.CircuitBreaker
}

type positionsResponse struct {
	Info      *satelliteInfo    `json:"info"`
	Positions []satellitePosRaw `json:"positions"`
}

type satelliteInfo struct {
	SatName string `json:"satname"`
	SatID   int    `json:"satid"`
}

type satellitePosRaw struct {
	SatLatitude  *float64 `json:"satlatitude"`
	SatLongitude *float64 `json:"satlongitude"`
	SatAltitude  *float64 `json:"sataltitude"`
	Timestamp    *int64   `json:"timestamp"`
}

func New(apiKey string, opts ...provider.Option) provider.PositionClient {
	o := provider.BuildOptions(DefaultBaseURL, "", opts...)
	if apiKey == "" || o.ForceFallback {
		o.Logger.Warn("n2yo not configured, reporting fallback positions")
		return &Mock{now: o.Now}
	}
	return &N2YOProvider{
		apiKey:  apiKey,
		opts:    o,
		breaker: provider.NewBreaker(Name),
	}
}

func (p *N2YOProvider) Position(ctx context.Context, at provider.Coordinates) provider.Result[provider.Position] {
	pos, err := provider.Guard(p.breaker, func() (provider.Position, error) {
		return p.lookup(ctx, at)
	})
	if err != nil {
		reason := provider.Classify(err)
		p.opts.Logger.Warn("n2yo call failed, using fallback position",
			zap.String("reason", string(reason)),
			zap.Error(provider.Redact(err)))
		return provider.FellBack(fallback(p.opts.Now), reason)
	}
	return provider.Succeeded(pos)
}

func (p *N2YOProvider) lookup(ctx context.Context, at provider.Coordinates) (provider.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.Timeout)
	defer cancel()

	// positions/{id}/{observer_lat}/{observer_lng}/{observer_alt}/{seconds}/
	endpoint := fmt.Sprintf("%s/positions/%d/%s/%s/0/2/?apiKey=%s",
		p.opts.BaseURL,
		ISSNoradID,
		strconv.FormatFloat(at.Latitude, 'f', -1, 64),
		strconv.FormatFloat(at.Longitude, 'f', -1, 64),
		url.QueryEscape(p.apiKey),
	)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return provider.Position{}, err
	}

	resp, err := p.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return provider.Position{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return provider.Position{}, &provider.StatusError{Provider: Name, Code: resp.StatusCode, Body: string(respBody)}
	}

	var raw positionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return provider.Position{}, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	return raw.position()
}

func (r positionsResponse) position() (provider.Position, error) {
	if len(r.Positions) == 0 {
		return provider.Position{}, fmt.Errorf("%w: no position data available", provider.ErrMalformedResponse)
	}
	first := r.Positions[0]
	if first.SatLatitude == nil || first.SatLongitude == nil || first.SatAltitude == nil || first.Timestamp == nil {
		return provider.Position{}, fmt.Errorf("%w: incomplete position", provider.ErrMalformedResponse)
	}

	name := "ISS"
	if r.Info != nil && r.Info.SatName != "" {
		name = r.Info.SatName
	}
	return provider.Position{
		SatelliteName: name,
		Latitude:      *first.SatLatitude,
		Longitude:     *first.SatLongitude,
		AltitudeKm:    *first.SatAltitude,
		Timestamp:     *first.Timestamp,
	}, nil
}

func (p *N2YOProvider) Name() string {
	return Name
}

func (p *N2YOProvider) Configured() bool {
	return true
}

func fallback(now func() time.Time) provider.Position {
	if now == nil {
		now = time.Now
	}
	pos := fallbackPosition
	pos.Timestamp = now().Unix()
	return pos
}

// Mock reports the fixed fallback position without touching the network.
type Mock struct {
	now func() time.Time
}

func (m *Mock) Position(context.Context, provider.Coordinates) provider.Result[provider.Position] {
	return provider.FellBack(fallback(m.now), provider.ReasonNotConfigured)
}

func (m *Mock) Name() string     { return Name }
func (m *Mock) Configured() bool { return false }
