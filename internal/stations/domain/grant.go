package stations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxGrantQuantity bounds the stations a single grant line may carry.
const MaxGrantQuantity = 100000

// StationRequest is a station line requested by a partner.
type StationRequest struct {
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name,omitempty"`
	ColorID   string `json:"color_id"`
	ColorName string `json:"color_name,omitempty"`
	Quantity  int    `json:"quantity"`
}

// StationGrant is a station line allocated to a partner.
type StationGrant struct {
	ModelID       string   `json:"model_id"`
	ModelName     string   `json:"model_name"`
	ColorID       string   `json:"color_id"`
	ColorName     string   `json:"color_name"`
	Quantity      int      `json:"quantity"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
}

// TotalQuantity sums the positive quantities of grants. The sum saturates at
// math.MaxInt instead of wrapping.
func TotalQuantity(grants []StationGrant) int {
	total := 0
	for _, grant := range grants {
		if grant.Quantity > 0 {
			total = addQuantity(total, grant.Quantity)
		}
	}
	return total
}

func addQuantity(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

// SerialNumbers flattens the serial numbers of grants, skipping blanks and duplicates.
func SerialNumbers(grants []StationGrant) []string {
	seen := make(map[string]struct{})
	var serials []string
	for _, grant := range grants {
		for _, serial := range grant.SerialNumbers {
			serial = strings.TrimSpace(serial)
			if serial == "" {
				continue
			}
			if _, ok := seen[serial]; ok {
				continue
			}
			seen[serial] = struct{}{}
			serials = append(serials, serial)
		}
	}
	return serials
}

// DecodeGrants normalizes a stored allocation. The stored value may be null,
// a JSON array, or a JSON string holding an encoded array.
func DecodeGrants(raw []byte) ([]StationGrant, error) {
	var grants []StationGrant
	if err := decodeList(raw, &grants); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAllocation, err)
	}
	return grants, nil
}

// DecodeRequests normalizes stored station requests, same shapes as DecodeGrants.
func DecodeRequests(raw []byte) ([]StationRequest, error) {
	var requests []StationRequest
	if err := decodeList(raw, &requests); err != nil {
		return nil, fmt.Errorf("stations: malformed stored requests: %v", err)
	}
	return requests, nil
}

// EncodeGrants renders grants as a canonical JSON array.
func EncodeGrants(grants []StationGrant) ([]byte, error) {
	if grants == nil {
		grants = []StationGrant{}
	}
	return json.Marshal(grants)
}

// EncodeRequests renders requests as a canonical JSON array.
func EncodeRequests(requests []StationRequest) ([]byte, error) {
	if requests == nil {
		requests = []StationRequest{}
	}
	return json.Marshal(requests)
}

func decodeList(raw []byte, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '[':
		return json.Unmarshal(trimmed, out)
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" || inner == "null" {
			return nil
		}
		if !strings.HasPrefix(inner, "[") {
			return errors.New("encoded value is not a list")
		}
		return json.Unmarshal([]byte(inner), out)
	default:
		return fmt.Errorf("unexpected value starting with %q", trimmed[0])
	}
}
