// Package journal persists executed orders and submitted transactions
// to a local SQLite database for post-trade inspection.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Order is one keeper order that made it on chain.
type Order struct {
	ID           uint   `gorm:"primaryKey"`
	CreatedAt    time.Time
	Account      string `gorm:"index"`
	Kind         string // sell | buy
	SellToken    string
	BuyToken     string
	AuctionIndex string
	Amount       string // big.Int decimal string
	AmountUSD    string
	TxHash       string `gorm:"uniqueIndex"`
	Nonce        uint64
}

// Submission is one coordinator submission, successful or not.
type Submission struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Account   string `gorm:"index"`
	Operation string
	TxHash    string
	Nonce     uint64
	GasPrice  string
	Error     string
}

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open creates the database file (and its directory) if needed and
// runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Order{}, &Submission{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordOrder(o *Order) error {
	return s.db.Create(o).Error
}

func (s *Store) RecordSubmission(sub *Submission) error {
	return s.db.Create(sub).Error
}

// RecentOrders returns the newest orders first.
func (s *Store) RecentOrders(limit int) ([]Order, error) {
	var orders []Order
	err := s.db.Order("id desc").Limit(limit).Find(&orders).Error
	return orders, err
}

// OrdersForAccount returns the account's orders, newest first.
func (s *Store) OrdersForAccount(account string, limit int) ([]Order, error) {
	var orders []Order
	err := s.db.Where("account = ?", account).Order("id desc").Limit(limit).Find(&orders).Error
	return orders, err
}

// RecentSubmissions returns the newest submissions first.
func (s *Store) RecentSubmissions(limit int) ([]Submission, error) {
	var subs []Submission
	err := s.db.Order("id desc").Limit(limit).Find(&subs).Error
	return subs, err
}
