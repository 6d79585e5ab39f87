// Package crm pushes high-confidence contracts to the Whise CRM.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/normalize"
)

const source = "contract-system-auto"

type ContractData struct {
	Huurprijs    *float64 `json:"huurprijs"`
	Adres        string   `json:"adres"`
	Type         string   `json:"type"`
	Oppervlakte  *float64 `json:"oppervlakte"`
	Verhuurder   string   `json:"verhuurder"`
	Huurder      string   `json:"huurder"`
	Ingangsdatum *string  `json:"ingangsdatum"`
	Einddatum    *string  `json:"einddatum"`
}

type Metadata struct {
	Filename   string  `json:"filename"`
	Confidence float64 `json:"confidence"`
	Processed  string  `json:"processed"`
	Source     string  `json:"source"`
}

// Payload is the body posted to the CRM endpoint.
type Payload struct {
	PropertyID   string       `json:"property_id"`
	ContractData ContractData `json:"contract_data"`
	Metadata     Metadata     `json:"metadata"`
}

// BuildPayload uses the property address as id, or the filename when the
// address is unknown.
func BuildPayload(c *normalize.Contract, filename string, score float64, at time.Time) Payload {
	id := c.Pand.Adres
	if id == "" {
		id = filename
	}
	return Payload{
		PropertyID: id,
		ContractData: ContractData{
			Huurprijs:    c.Financieel.Huurprijs,
			Adres:        c.Pand.Adres,
			Type:         c.Pand.Type,
			Oppervlakte:  c.Pand.Oppervlakte,
			Verhuurder:   c.Partijen.Verhuurder.Naam,
			Huurder:      c.Partijen.Huurder.Naam,
			Ingangsdatum: c.Periodes.Ingangsdatum,
			Einddatum:    c.Periodes.Einddatum,
		},
		Metadata: Metadata{
			Filename:   filename,
			Confidence: score,
			Processed:  at.Format("2006-01-02 15:04:05"),
			Source:     source,
		},
	}
}

// Pushed describes an accepted push.
type Pushed struct {
	ID       string
	PushedAt time.Time
}

type Client struct {
	cfg    common.CRMConfig
	http   *http.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewClient(cfg common.CRMConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, now: time.Now, logger: logger}
}

// Enabled reports whether an endpoint and token are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Endpoint != "" && c.cfg.Token != ""
}

// Eligible reports whether score qualifies for an automatic push.
func (c *Client) Eligible(score float64) bool {
	return score >= c.cfg.MinScore
}

// Push posts p. Only 200 and 201 count as accepted.
func (c *Client) Push(ctx context.Context, p Payload) (*Pushed, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: crm endpoint not configured", common.ErrInvalidInput)
	}
	raw, status, err := llm.SendJSON(ctx, c.http, c.cfg.Endpoint, p, map[string]string{
		"Authorization": "Bearer " + c.cfg.Token,
	}, c.logger)
	if err != nil {
		c.logger.Warn("crm.push.failed", "property_id", p.PropertyID, "status", status, "error", err)
		return nil, fmt.Errorf("crm push: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("crm push: unexpected status %d", status)
	}

	var body struct {
		ID any `json:"id"`
	}
	_ = json.Unmarshal(raw, &body)
	id := ""
	switch v := body.ID.(type) {
	case nil:
	case string:
		id = v
	case float64:
		id = fmt.Sprintf("%.0f", v)
	default:
		id = fmt.Sprint(v)
	}
	c.logger.Info("crm.push.ok", "property_id", p.PropertyID, "crm_id", id)
	return &Pushed{ID: id, PushedAt: c.now()}, nil
}
