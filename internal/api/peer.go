package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"battlelog-tracker/internal/config"
	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var ErrPeerNotConfigured = errors.New("peer deployment is not configured")

// PushResponse is what /api/add_battlelog answers.
type PushResponse struct {
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

type LatestLossesResponse struct {
	Season  string              `json:"season"`
	Results []domain.LossDigest `json:"results"`
}

// PeerClient talks to the other deployment's JSON API.
type PeerClient struct {
	http    *Client
	baseURL string
	logger  zerolog.Logger
}

func NewPeerClient(baseURL, token string, logger zerolog.Logger) *PeerClient {
	return &PeerClient{
		http:    NewClient(token),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("client", "peer").Logger(),
	}
}

func NewPeerClientFromConfig(cfg *config.Config, logger zerolog.Logger) *PeerClient {
	return NewPeerClient(cfg.PeerURL, cfg.PeerToken, logger)
}

func (c *PeerClient) Configured() bool {
	return c != nil && c.baseURL != ""
}

// PushBattleLog forwards a converted row. The row carries no origin label so
// the receiver files it as federated.
func (c *PeerClient) PushBattleLog(ctx context.Context, row domain.Row) error {
	if !c.Configured() {
		return ErrPeerNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, constants.PeerPushTimeout)
	defer cancel()

	payload := make(domain.Row, len(row))
	for k, v := range row {
		if k == domain.ColumnOrigin {
			continue
		}
		payload[k] = v
	}

	res, err := doRequest[PushResponse](ctx, c.http, request{
		method: fasthttp.MethodPost,
		url:    c.baseURL + "/api/add_battlelog",
		body:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to push battle log: %w", err)
	}
	if res.Result != "ok" {
		return fmt.Errorf("failed to push battle log: peer answered %q: %s", res.Result, res.Detail)
	}

	c.logger.Debug().Str("date", row[domain.ColumnDate]).Msg("battle log pushed to peer")
	return nil
}

func (c *PeerClient) LatestLosses(ctx context.Context, n int, season string, excludeFederated bool) (*LatestLossesResponse, error) {
	if !c.Configured() {
		return nil, ErrPeerNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	q := url.Values{}
	if n > 0 {
		q.Set("n", strconv.Itoa(n))
	}
	if season != "" {
		q.Set("season", season)
	}
	if excludeFederated {
		q.Set("exclude_federated", "true")
	}

	u := c.baseURL + "/api/latest-losses"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	res, err := doRequest[LatestLossesResponse](ctx, c.http, request{
		method: fasthttp.MethodGet,
		url:    u,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest losses: %w", err)
	}
	return res, nil
}
