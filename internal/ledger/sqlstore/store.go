package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"ctfex.com/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Owner     string `gorm:"size:42;not null;uniqueIndex:uk_owner_asset,priority:1"`
	Asset     string `gorm:"size:66;not null;uniqueIndex:uk_owner_asset,priority:2"`
	Amount    uint64 `gorm:"not null;default:0"`
	UpdatedAt int64  `gorm:"autoUpdateTime"`
}

func (BalanceRow) TableName() string { return "balances" }

type ApprovalRow struct {
	Owner    string `gorm:"primaryKey;size:42"`
	Operator string `gorm:"primaryKey;size:42"`
	Approved bool   `gorm:"not null"`
}

func (ApprovalRow) TableName() string { return "approvals" }

// Store is a gorm-backed ledger. One Apply is one DB transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&BalanceRow{}, &ApprovalRow{}); err != nil {
		return nil, fmt.Errorf("ledger sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Balance(ctx context.Context, owner common.Address, asset common.Hash) (uint64, error) {
	var row BalanceRow
	err := s.db.WithContext(ctx).
		Where("owner = ? AND asset = ?", owner.Hex(), asset.Hex()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Amount, nil
}

func (s *Store) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var row ApprovalRow
	err := s.db.WithContext(ctx).
		Where("owner = ? AND operator = ?", owner.Hex(), operator.Hex()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Approved, nil
}

func (s *Store) Apply(ctx context.Context, deltas []ledger.Delta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range deltas {
			if err := applyOne(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyOne 锁行 -> 校验 -> 写回, 行不存在时插入
func applyOne(tx *gorm.DB, d ledger.Delta) error {
	owner, asset := d.Owner.Hex(), d.Asset.Hex()

	var row BalanceRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ? AND asset = ?", owner, asset).
		Take(&row).Error
	missing := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !missing {
		return err
	}

	sum := row.Amount + d.In
	if sum < row.Amount || sum < d.Out {
		return fmt.Errorf("%s %s: %w", owner, asset, ledger.ErrInsufficientBalance)
	}
	next := sum - d.Out

	if missing {
		return tx.Create(&BalanceRow{Owner: owner, Asset: asset, Amount: next}).Error
	}
	return tx.Model(&BalanceRow{}).Where("id = ?", row.ID).Update("amount", next).Error
}

func (s *Store) Credit(ctx context.Context, owner common.Address, asset common.Hash, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}
	return s.Apply(ctx, []ledger.Delta{{Owner: owner, Asset: asset, In: amount}})
}

func (s *Store) SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error {
	row := ApprovalRow{Owner: owner.Hex(), Operator: operator.Hex(), Approved: approved}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "operator"}},
		DoUpdates: clause.AssignmentColumns([]string{"approved"}),
	}).Create(&row).Error
}
