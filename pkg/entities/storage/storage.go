// Package storage описывает хранилище объектов посылок.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound объекта с таким ключом нет.
var ErrNotFound = errors.New("object not found")

// ObjectStorage хранилище сериализованных посылок по ключу.
type ObjectStorage interface {
	// Put сохраняет объект, перезаписывая существующий.
	Put(ctx context.Context, key string, data []byte) error

	// Get возвращает объект или ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete удаляет объект. Удаление отсутствующего ключа не ошибка.
	Delete(ctx context.Context, key string) error

	// Close закрывает хранилище.
	Close() error
}
