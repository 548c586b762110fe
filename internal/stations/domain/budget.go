package stations

// AllocationRecord is one partner's committed allocation within an area.
type AllocationRecord struct {
	PartnerID string
	Grants    []StationGrant
	Err       error
}

// BudgetSummary is the derived budget state of an area.
type BudgetSummary struct {
	AreaID    string   `json:"area_id"`
	Total     int      `json:"total"`
	Committed int      `json:"committed"`
	Available int      `json:"available"`
	Partners  int      `json:"partners_allocated"`
	Malformed []string `json:"malformed_partners,omitempty"`
}

// ComputeBudget derives the available budget of area from records, leaving
// out excludePartnerID. A record with Err contributes zero and is listed in
// Malformed. Available never goes below zero.
func ComputeBudget(area Area, records []AllocationRecord, excludePartnerID string) BudgetSummary {
	summary := BudgetSummary{AreaID: area.ID, Total: area.StationBudget}
	for _, record := range records {
		if excludePartnerID != "" && record.PartnerID == excludePartnerID {
			continue
		}
		if record.Err != nil {
			summary.Malformed = append(summary.Malformed, record.PartnerID)
			continue
		}
		quantity := TotalQuantity(record.Grants)
		if quantity == 0 {
			continue
		}
		summary.Committed = addQuantity(summary.Committed, quantity)
		summary.Partners++
	}
	summary.Available = summary.Total - summary.Committed
	if summary.Available < 0 {
		summary.Available = 0
	}
	return summary
}
