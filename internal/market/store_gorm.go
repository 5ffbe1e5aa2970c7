package market

import (
	"context"
	"errors"
	"fmt"

	"ctfex.com/pkg/orm"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MarketRow struct {
	ID         string `gorm:"primaryKey;size:66"`
	Collateral string `gorm:"size:42;not null"`
	YesToken   string `gorm:"size:66;not null"`
	NoToken    string `gorm:"size:66;not null"`
	EndTime    int64  `gorm:"not null;default:0"`
	Paused     bool   `gorm:"not null;default:false"`
	Resolved   bool   `gorm:"not null;default:false"`
	Outcome    uint8  `gorm:"not null;default:0"`
	CreatedAt  int64  `gorm:"autoCreateTime"`
	UpdatedAt  int64  `gorm:"autoUpdateTime"`
}

func (MarketRow) TableName() string { return "markets" }

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("market: nil db")
	}
	if err := db.AutoMigrate(&MarketRow{}); err != nil {
		return nil, fmt.Errorf("market: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, m *Market) error {
	row := MarketRow{
		ID:         m.ID.Hex(),
		Collateral: m.Collateral.Hex(),
		YesToken:   m.YesToken.Hex(),
		NoToken:    m.NoToken.Hex(),
		EndTime:    m.EndTime,
		Paused:     m.Paused,
		Resolved:   m.Resolved,
		Outcome:    uint8(m.Outcome),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"paused", "resolved", "outcome", "end_time", "updated_at"}),
	}).Create(&row).Error
}

const loadPageSize = 500

// LoadAll 分页读, 避免一次把整张表拉进内存
func (s *GormStore) LoadAll(ctx context.Context) ([]*Market, error) {
	var out []*Market
	for page := 1; ; page++ {
		var rows []MarketRow
		q := orm.ApplyPagination(s.db.WithContext(ctx).Order("id"), page, loadPageSize)
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out = appendRows(out, rows)
		if len(rows) < loadPageSize {
			return out, nil
		}
	}
}

func appendRows(out []*Market, rows []MarketRow) []*Market {
	for _, r := range rows {
		out = append(out, &Market{
			ID:         common.HexToHash(r.ID),
			Collateral: common.HexToAddress(r.Collateral),
			YesToken:   common.HexToHash(r.YesToken),
			NoToken:    common.HexToHash(r.NoToken),
			EndTime:    r.EndTime,
			Registered: true,
			Paused:     r.Paused,
			Resolved:   r.Resolved,
			Outcome:    Outcome(r.Outcome),
		})
	}
	return out
}
