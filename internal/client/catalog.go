package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkout-service/config"

	"go.uber.org/zap"
)

// CartItem is a priced line the catalog service materializes from a
// cart. The unit price here is the source of truth for the order total;
// client-supplied prices are never trusted.
type CartItem struct {
	ProductID string  `json:"product_id"`
	DesignID  *string `json:"design_id,omitempty"`
	UnitPrice int64   `json:"unit_price"`
	Quantity  int32   `json:"quantity"`
}

// CartMaterializer is the catalog/cart collaborator contract.
type CartMaterializer interface {
	MaterializeCart(ctx context.Context, userID, cartID string) ([]CartItem, error)
}

type CatalogClient struct {
	cfg        config.CatalogConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCatalogClient(cfg config.CatalogConfig, logger *zap.Logger) *CatalogClient {
	return &CatalogClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type materializeResponse struct {
	Status string     `json:"status"`
	Data   []CartItem `json:"data"`
}

func (c *CatalogClient) MaterializeCart(ctx context.Context, userID, cartID string) ([]CartItem, error) {
	url := fmt.Sprintf("%s/internal/v1/carts/%s/materialize?user_id=%s", c.cfg.BaseURL, cartID, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("catalog request failed",
			zap.String("cart_id", cartID),
			zap.Error(err))
		return nil, fmt.Errorf("catalog unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("cart not found: %s", cartID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body materializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return body.Data, nil
}
