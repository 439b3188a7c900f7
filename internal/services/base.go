package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// BaseService interface defines common CRUD operations
type BaseService[T any] interface {
	Create(ctx context.Context, entity *T) error
	Get(ctx context.Context, id string) (*T, error)
	List(ctx context.Context, page, limit int, filters map[string]interface{}) ([]T, int64, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) (*T, error)
	Delete(ctx context.Context, id string) error
	WithTx(tx *gorm.DB) BaseService[T]
}

// BaseServiceImpl implements BaseService
type BaseServiceImpl[T any] struct {
	db        *gorm.DB
	modelType T
}

func GormTableName(db *gorm.DB, v any) string {
	structName := reflect.TypeOf(v).Name()
	return db.NamingStrategy.TableName(structName)
}

// LockTable holds off other writers to the model's table until tx ends, so
// check-then-insert sequences stay atomic. SQLite already serializes
// writers, so only postgres takes an explicit lock.
func LockTable(tx *gorm.DB, model any) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	table := tx.Statement.Quote(GormTableName(tx, model))
	return tx.Exec(fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", table)).Error
}

// NewBaseService creates a new base service
func NewBaseService[T any](db *gorm.DB, modelType T) BaseService[T] {
	return &BaseServiceImpl[T]{
		db:        db,
		modelType: modelType,
	}
}

// WithTx returns a copy bound to tx.
func (s *BaseServiceImpl[T]) WithTx(tx *gorm.DB) BaseService[T] {
	return &BaseServiceImpl[T]{db: tx, modelType: s.modelType}
}

func (s *BaseServiceImpl[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

// Get returns ErrNotFound when no live row has the id.
func (s *BaseServiceImpl[T]) Get(ctx context.Context, id string) (*T, error) {
	var entity T
	if err := s.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("%s %s not found", GormTableName(s.db, s.modelType), id)
		}
		return nil, err
	}
	return &entity, nil
}

func (s *BaseServiceImpl[T]) List(ctx context.Context, page, limit int, filters map[string]interface{}) ([]T, int64, error) {
	var entities []T
	var total int64

	query := s.db.WithContext(ctx).Model(new(T))

	// Apply filters
	for key, value := range filters {
		query = query.Where(key+" = ?", value)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination
	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	// Execute query
	if err := query.Order("created_at ASC").Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}

// Count returns the number of live rows.
func (s *BaseServiceImpl[T]) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(new(T)).Count(&total).Error
	return total, err
}

// Update applies fields to the row with id and returns the fresh row.
func (s *BaseServiceImpl[T]) Update(ctx context.Context, id string, fields map[string]interface{}) (*T, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return entity, nil
	}
	if err := s.db.WithContext(ctx).Model(entity).Updates(fields).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes the row. Deleting a missing id is not an error.
func (s *BaseServiceImpl[T]) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T)).Error
}

// SingletonService manages a table holding at most one row.
type SingletonService[T any] interface {
	Find(ctx context.Context) (*T, error)
	GetOrCreate(ctx context.Context) (*T, error)
	Upsert(ctx context.Context, fields map[string]interface{}) (*T, error)
	Save(ctx context.Context, entity *T) error
}

type SingletonServiceImpl[T any] struct {
	db        *gorm.DB
	modelType T
}

func NewSingletonService[T any](db *gorm.DB, modelType T) SingletonService[T] {
	return &SingletonServiceImpl[T]{
		db:        db,
		modelType: modelType,
	}
}

// Find returns the row or ErrNotFound when the section was never written.
func (s *SingletonServiceImpl[T]) Find(ctx context.Context) (*T, error) {
	var entity T
	err := s.db.WithContext(ctx).Order("created_at ASC").Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("%s not found", GormTableName(s.db, s.modelType))
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetOrCreate returns the row, inserting an empty one when absent.
func (s *SingletonServiceImpl[T]) GetOrCreate(ctx context.Context) (*T, error) {
	entity, err := s.Find(ctx)
	if err == nil {
		return entity, nil
	}
	if KindOf(err) != KindNotFound {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := LockTable(tx, s.modelType); err != nil {
			return err
		}
		var existing T
		err := tx.Order("created_at ASC").Take(&existing).Error
		if err == nil {
			entity = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		entity = new(T)
		return tx.Create(entity).Error
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Upsert creates the row with fields when absent, else merges fields into
// it. Concurrent upserts are last-write-wins.
func (s *SingletonServiceImpl[T]) Upsert(ctx context.Context, fields map[string]interface{}) (*T, error) {
	entity, err := s.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return entity, nil
	}
	if err := s.db.WithContext(ctx).Model(entity).Updates(fields).Error; err != nil {
		return nil, err
	}
	return s.Find(ctx)
}

func (s *SingletonServiceImpl[T]) Save(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Save(entity).Error
}
