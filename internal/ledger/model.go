package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// Action is the executed operation recorded for a trade.
type Action string

const (
	ActionOpenLong  Action = "open_long"
	ActionOpenShort Action = "open_short"
	ActionClose     Action = "close"
	ActionHold      Action = "hold"
)

// Close reasons recorded on ActionClose rows.
const (
	ReasonSignalClose   = "signal_close"
	ReasonDirectionFlip = "direction_flip"
	ReasonTakeProfit    = "take_profit"
	ReasonStopLoss      = "stop_loss"
)

// TradeRecord is the immutable audit row for one executed (or rejected)
// trade. OrderID is the exchange's identifier for the resulting order,
// empty when submission failed. Decision carries the raw advisory payload
// that led to it.
type TradeRecord struct {
	ID         uint
	Timestamp  time.Time
	Symbol     string
	Action     Action
	Side       string
	Quantity   float64
	Price      float64
	OrderID    string
	Success    bool
	Reason     string
	Error      string
	PnL        float64
	Decision   []byte
	Invocation int64
}

type tradeRecordModel struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	Symbol     string    `gorm:"index;size:32"`
	Action     string    `gorm:"size:16"`
	Side       string    `gorm:"size:8"`
	Quantity   float64
	Price      float64
	OrderID    string `gorm:"size:64"`
	Success    bool
	Reason     string `gorm:"size:32"`
	Error      string
	PnL        float64
	Decision   datatypes.JSON
	Invocation int64
}

func (tradeRecordModel) TableName() string { return "trade_records" }

// ledgerStateModel is the single-row (id=1) aggregate that survives
// restarts: session bookkeeping plus running performance counters.
type ledgerStateModel struct {
	ID               uint `gorm:"primaryKey"`
	StartTime        time.Time
	InitialEquity    float64
	InvocationCount  int64
	SessionCount     int64
	TotalTrades      int64
	SuccessfulTrades int64
	FailedTrades     int64
	ClosedTrades     int64
	WinningTrades    int64
	TotalPnL         float64
	BestTrade        float64
	WorstTrade       float64
	MaxDrawdown      float64
	LastSessionEnd   *time.Time
	UpdatedAt        time.Time
}

func (ledgerStateModel) TableName() string { return "ledger_state" }

// Summary is the read-only performance view derived from the state row.
type Summary struct {
	StartTime        time.Time
	InitialEquity    float64
	InvocationCount  int64
	SessionCount     int64
	TotalTrades      int64
	SuccessfulTrades int64
	FailedTrades     int64
	ClosedTrades     int64
	WinningTrades    int64
	WinRate          float64
	TotalPnL         float64
	BestTrade        float64
	WorstTrade       float64
	MaxDrawdown      float64
}

func (m *ledgerStateModel) summary() Summary {
	s := Summary{
		StartTime:        m.StartTime,
		InitialEquity:    m.InitialEquity,
		InvocationCount:  m.InvocationCount,
		SessionCount:     m.SessionCount,
		TotalTrades:      m.TotalTrades,
		SuccessfulTrades: m.SuccessfulTrades,
		FailedTrades:     m.FailedTrades,
		ClosedTrades:     m.ClosedTrades,
		WinningTrades:    m.WinningTrades,
		TotalPnL:         m.TotalPnL,
		BestTrade:        m.BestTrade,
		WorstTrade:       m.WorstTrade,
		MaxDrawdown:      m.MaxDrawdown,
	}
	if m.ClosedTrades > 0 {
		s.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades)
	}
	return s
}
