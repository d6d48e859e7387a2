package evm

import "time"

type ChainConfig struct {
	ChainID      uint64    `gorm:"primaryKey" json:"chain_id"`
	ChainName    string    `gorm:"type:varchar(64);not null" json:"chain_name"`
	RPCURL       string    `gorm:"type:varchar(256);not null" json:"rpc_url"`
	NativeSymbol string    `gorm:"type:varchar(16);not null" json:"native_symbol"`
	Decimals     uint8     `gorm:"not null" json:"decimals"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ChainConfig) TableName() string { return "evm_chains" }

const (
	TxStatusSubmitted = "submitted"
)

type TransactionRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChainID   uint64    `gorm:"index;not null" json:"chain_id"`
	TxHash    string    `gorm:"type:varchar(66);index" json:"tx_hash"`
	To        string    `gorm:"type:varchar(42);not null" json:"to"`
	ValueWei  string    `gorm:"type:varchar(80);not null" json:"value_wei"`
	Status    string    `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (TransactionRecord) TableName() string { return "evm_txs" }

type WalletInfo struct {
	Address   string `json:"address"`
	ChainID   uint64 `json:"chain_id"`
	ChainName string `json:"chain_name"`
}
