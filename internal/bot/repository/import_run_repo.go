package repository

import (
	"context"
	"errors"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/entity"
	"gorm.io/gorm"
)

// ImportRunRepository 导入记录仓库
type ImportRunRepository struct {
	db *gorm.DB
}

func NewImportRunRepository(db *gorm.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// Create 创建导入记录
func (r *ImportRunRepository) Create(ctx context.Context, run *entity.ImportRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update 更新导入记录
func (r *ImportRunRepository) Update(ctx context.Context, run *entity.ImportRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindByID 根据ID查找导入记录
func (r *ImportRunRepository) FindByID(ctx context.Context, id string) (*entity.ImportRun, error) {
	var run entity.ImportRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindAll 查询导入记录列表
func (r *ImportRunRepository) FindAll(ctx context.Context, page, pageSize int, importType string) ([]entity.ImportRun, int64, error) {
	var items []entity.ImportRun
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ImportRun{})
	if importType != "" {
		query = query.Where("type = ?", importType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}
