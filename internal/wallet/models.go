package wallet

import "time"

const (
	DirectionSend    = "send"
	DirectionReceive = "receive"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type TransactionRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Direction   string    `gorm:"type:varchar(8);not null" json:"direction"`
	AmountE8s   uint64    `gorm:"not null" json:"amount_e8s"`
	To          string    `gorm:"type:varchar(128)" json:"to,omitempty"`
	From        string    `gorm:"type:varchar(128)" json:"from,omitempty"`
	Memo        uint64    `json:"memo"`
	Status      string    `gorm:"type:varchar(16);not null" json:"status"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	BlockHeight *uint64   `json:"block_height,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TransactionRecord) TableName() string { return "wallet_txs" }

type WalletInfo struct {
	Address           string `json:"icp_address"`
	Principal         string `json:"principal_id"`
	BalanceE8s        uint64 `json:"icp_balance"`
	LastBalanceUpdate int64  `json:"last_balance_update"`
}
