package models

type AttentionPosition struct {
	PositionID   string  `json:"position_id"`
	Name         string  `json:"name"`
	ShortName    string  `json:"short_name"`
	BusinessUnit string  `json:"business_unit"`
	Available    bool    `json:"available"`
	Background   string  `json:"background,omitempty"`
	Current      *string `json:"current,omitempty"`
}
