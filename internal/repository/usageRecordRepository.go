package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/storage"
)

type UsageRecordRepository struct {
	db *storage.Postgres
}

func NewUsageRecordRepository(db *storage.Postgres) *UsageRecordRepository {
	return &UsageRecordRepository{db: db}
}

// Inserts a new usage record
func (r *UsageRecordRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

// Inserts multiple usage records (for batch insertion)
func (r *UsageRecordRepository) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&records).Error
}

// Retrieves records for a user within a time range
func (r *UsageRecordRepository) FindByUser(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord

	err := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}

// Counts a user's records in a time range
func (r *UsageRecordRepository) CountByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Count(&count).Error

	return count, err
}

// Sums cost units charged to a user in a time range
func (r *UsageRecordRepository) SumCostByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Select("COALESCE(SUM(cost_units), 0)").
		Scan(&total).Error

	return total, err
}

// Returns per-operation request and cost totals for a user
func (r *UsageRecordRepository) GetOperationBreakdown(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select("operation, COUNT(*) as requests, COALESCE(SUM(cost_units), 0) as cost_units").
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Group("operation").
		Order("cost_units DESC").
		Rows()

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var operation string
		var requests, costUnits int64

		if err := rows.Scan(&operation, &requests, &costUnits); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"operation":  operation,
			"requests":   requests,
			"cost_units": costUnits,
		})
	}

	return results, nil
}

// Counts rejected decisions for a user (success = false)
func (r *UsageRecordRepository) CountRejections(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND success = ? AND timestamp BETWEEN ? AND ?", userID, false, from, to).
		Count(&count).Error

	return count, err
}

// Deletes records older than the specified time
func (r *UsageRecordRepository) DeleteOldRecords(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.UsageRecord{})

	return result.RowsAffected, result.Error
}
