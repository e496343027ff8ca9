package task

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, task *Task) error {
	result := r.db.WithContext(ctx).Create(task)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Task, error) {
	var task Task
	result := r.db.WithContext(ctx).First(&task, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &task, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, progress int, taskErr *string) error {
	result := r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":   status,
		"progress": progress,
		"error":    taskErr,
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errors.New("task not found")
	}

	return nil
}
