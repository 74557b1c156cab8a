package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput 键或结果未通过结构校验，不会触达存储
	ErrMalformedInput = errors.New("malformed input")

	// ErrEntryNotFound 指定 ID 的缓存条目不存在
	ErrEntryNotFound = errors.New("cache entry not found")
)

// StorageError 存储不可达、超时或拒绝写入时返回的错误，携带底层原因。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError 包装存储错误；err 为 nil 时返回 nil。
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError 判断错误链中是否包含 StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
