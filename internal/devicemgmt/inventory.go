package devicemgmt

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// InventoryClient talks to the kiosk inventory system that tracks where each
// device is located.
type InventoryClient struct {
	client *Client
}

// NewInventoryClient constructs an inventory client.
func NewInventoryClient(client *Client) (*InventoryClient, error) {
	if client == nil {
		return nil, errors.New("devicemgmt: nil inventory client")
	}
	return &InventoryClient{client: client}, nil
}

// InventoryDevice is a device as seen by the inventory system.
type InventoryDevice struct {
	ID           string   `json:"id"`
	SerialNumber string   `json:"serial_number"`
	VenueID      string   `json:"venue_id"`
	Tags         []string `json:"tags"`
}

type deviceListResponse struct {
	Data []InventoryDevice `json:"data"`
}

type venuePatch struct {
	VenueID string   `json:"venue_id"`
	Tags    []string `json:"tags"`
}

// FindBySerial looks a device up by serial number.
func (c *InventoryClient) FindBySerial(ctx context.Context, serial string) (InventoryDevice, error) {
	if serial == "" {
		return InventoryDevice{}, errors.New("devicemgmt: empty serial number")
	}
	var resp deviceListResponse
	path := "/api/v1/devices?serial_number=" + url.QueryEscape(serial)
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return InventoryDevice{}, ErrDeviceNotFound
		}
		return InventoryDevice{}, err
	}
	for _, device := range resp.Data {
		if device.SerialNumber == serial {
			return device, nil
		}
	}
	return InventoryDevice{}, ErrDeviceNotFound
}

// MoveToVenue reassigns a device to venueID and drops tags matching any of
// the clearTags prefixes.
func (c *InventoryClient) MoveToVenue(ctx context.Context, serial, venueID string, clearTags []string) error {
	if venueID == "" {
		return errors.New("devicemgmt: empty venue id")
	}
	device, err := c.FindBySerial(ctx, serial)
	if err != nil {
		return err
	}
	patch := venuePatch{VenueID: venueID, Tags: keepTags(device.Tags, clearTags)}
	if err := c.client.doJSON(ctx, http.MethodPatch, "/api/v1/devices/"+url.PathEscape(device.ID), patch, nil); err != nil {
		if errors.Is(err, errNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}

func keepTags(tags, clearPrefixes []string) []string {
	kept := make([]string, 0, len(tags))
	for _, tag := range tags {
		drop := false
		for _, prefix := range clearPrefixes {
			if prefix != "" && strings.HasPrefix(tag, prefix) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, tag)
		}
	}
	return kept
}
