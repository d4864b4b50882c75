package repository

import (
	"context"
	"edu_backend/internal/model"

	"gorm.io/gorm"
)

type FileRepository struct {
	DB *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{DB: db}
}

func (r *FileRepository) Create(ctx context.Context, tx *gorm.DB, file *model.File) error {
	return pick(ctx, r.DB, tx).Create(file).Error
}

func (r *FileRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return pick(ctx, r.DB, tx).Delete(&model.File{}, id).Error
}
