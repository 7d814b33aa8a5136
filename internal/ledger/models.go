// Package ledger persists trade closures and execution reports to
// Postgres via gorm, the audit trail behind the at-least-once reports
// published to the broker (§3.10).
package ledger

import "time"

// TradeClosure is the durable record of a closed trade, one row per
// trade_id.
type TradeClosure struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	TradeID   string `gorm:"column:trade_id;uniqueIndex;size:64"`
	Direction string `gorm:"column:direction;size:8"`
	Reward    float64
	MaxDD     float64 `gorm:"column:max_dd"`
	BuyQty    float64 `gorm:"column:buy_qty"`
	SellQty   float64 `gorm:"column:sell_qty"`
	BuyQP     float64 `gorm:"column:buy_qp"`
	SellQP    float64 `gorm:"column:sell_qp"`
	ClosedAt  time.Time `gorm:"column:closed_at"`
}

// TableName pins the table name so migrations stay stable across gorm's
// pluralization heuristics.
func (TradeClosure) TableName() string { return "trade_closures" }

// ExecutionReport is one published per-execution or closure report,
// persisted for auditing (§7 "at-least-once, per-state-id dedup").
// Nothing in this repository reads these rows back.
type ExecutionReport struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	StateID           uint32 `gorm:"column:state_id;index"`
	ExchangeID         string `gorm:"column:exchange_id;size:64"`
	TradeID            string `gorm:"column:trade_id;size:64;index"`
	IsTradeClosed      bool   `gorm:"column:is_trade_closed"`
	ExecutionFraction  *float64 `gorm:"column:execution_fraction"`
	Reward             *float64 `gorm:"column:reward"`
	ReportedAt         time.Time `gorm:"column:reported_at"`
}

// TableName pins the table name per §3.10.
func (ExecutionReport) TableName() string { return "execution_reports" }
