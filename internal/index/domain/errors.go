package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 请求的日期或股票没有任何数据
	ErrNotFound = errors.New("no data for requested date or ticker")
	// ErrInsufficientData 数据存在但不可用（如市值总和为零、当日无行情）
	ErrInsufficientData = errors.New("insufficient data for index computation")
	// ErrComputationTimeout 等待他人计算超时，调用方可重试
	ErrComputationTimeout = errors.New("timed out waiting for index computation")
)

// StorageError 底层存储不可用，核心不做自动重试
type StorageError struct {
	// Op 失败的存储操作
	Op string
	// Err 底层错误
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError 包装一个存储层错误
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError 判断是否为存储层错误
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
