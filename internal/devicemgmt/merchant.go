package devicemgmt

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// MerchantClient talks to the point-of-sale system that pairs each device
// with a merchant account.
type MerchantClient struct {
	client *Client
}

// NewMerchantClient constructs a merchant client.
func NewMerchantClient(client *Client) (*MerchantClient, error) {
	if client == nil {
		return nil, errors.New("devicemgmt: nil merchant client")
	}
	return &MerchantClient{client: client}, nil
}

// ResetMerchant removes the merchant binding of a terminal.
func (c *MerchantClient) ResetMerchant(ctx context.Context, serial string) error {
	if serial == "" {
		return errors.New("devicemgmt: empty serial number")
	}
	path := "/api/v1/terminals/" + url.PathEscape(serial) + "/reset"
	if err := c.client.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil); err != nil {
		if errors.Is(err, errNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}
