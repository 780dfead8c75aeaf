package models

// StatementData carries the non-transaction side of a custodial statement:
// broker metadata plus the four report tables. It is shown in the import
// preview and persisted separately from line items on explicit confirmation.
type StatementData struct {
	BrokerName    string `json:"broker_name,omitempty"`
	AccountLabel  string `json:"account_label,omitempty"`
	PeriodStart   string `json:"period_start,omitempty"`
	PeriodEnd     string `json:"period_end,omitempty"`
	BaseCurrency  string `json:"base_currency,omitempty"`
	StatementDate string `json:"statement_date,omitempty"`

	NAVRows     []NAVRow         `json:"nav_rows,omitempty"`
	Positions   []PositionRow    `json:"positions,omitempty"`
	CashReport  []CashReportRow  `json:"cash_report,omitempty"`
	Performance []PerformanceRow `json:"performance,omitempty"`

	// TotalNAV is computed from the NAV rows at parse time.
	TotalNAV float64 `json:"total_nav"`
}

// NAVRow is one asset-class line of the net asset value table.
type NAVRow struct {
	AssetClass string  `json:"asset_class"`
	PriorValue float64 `json:"prior_value"`
	Value      float64 `json:"value"`
}

// PositionRow is one open position at statement close.
type PositionRow struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	CostBasis float64 `json:"cost_basis,omitempty"`
}

// CashReportRow is one line of the cash activity summary.
type CashReportRow struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// PerformanceRow is one line of the period performance summary.
type PerformanceRow struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}
