package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deep-research-agent/internal/model"
	"deep-research-agent/internal/repository/contract"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresSessionBackendImpl struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresSessionBackend(db *gorm.DB) contract.SessionBackend {
	return &PostgresSessionBackendImpl{db: db, now: time.Now}
}

func (b *PostgresSessionBackendImpl) Put(ctx context.Context, id string, data []byte) error {
	record := model.ResearchSessionRecord{
		SessionID: id,
		Document:  datatypes.JSON(data),
		UpdatedAt: b.now().UTC(),
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("postgres put session: %w", err)
	}
	return nil
}

func (b *PostgresSessionBackendImpl) Get(ctx context.Context, id string) ([]byte, error) {
	var record model.ResearchSessionRecord
	if err := b.db.WithContext(ctx).Where("session_id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, contract.ErrRecordNotFound
		}
		return nil, fmt.Errorf("postgres get session: %w", err)
	}
	return []byte(record.Document), nil
}

func (b *PostgresSessionBackendImpl) Delete(ctx context.Context, id string) (bool, error) {
	result := b.db.WithContext(ctx).Where("session_id = ?", id).Delete(&model.ResearchSessionRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("postgres delete session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (b *PostgresSessionBackendImpl) List(ctx context.Context) ([]contract.RecordInfo, error) {
	var rows []struct {
		SessionID string
		UpdatedAt time.Time
	}
	err := b.db.WithContext(ctx).
		Model(&model.ResearchSessionRecord{}).
		Select("session_id", "updated_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres list sessions: %w", err)
	}

	records := make([]contract.RecordInfo, len(rows))
	for i, row := range rows {
		records[i] = contract.RecordInfo{ID: row.SessionID, ModifiedAt: row.UpdatedAt.UTC()}
	}
	return records, nil
}
