package storageopt

import (
	"errors"
	"fmt"
	"math"
)

// 分页相关错误。
var (
	// ErrInvalidPage 表示页码无效（必须 >= 0，页码从 0 开始）。
	ErrInvalidPage = errors.New("storageopt: invalid page number, must be >= 0")

	// ErrInvalidPageSize 表示每页大小无效。
	ErrInvalidPageSize = errors.New("storageopt: invalid page size")

	// ErrPageOverflow 表示分页计算溢出。
	ErrPageOverflow = errors.New("storageopt: page calculation overflow, reduce page number or page size")
)

// ValidatePagination 验证零基分页参数并返回 offset = page * pageSize。
//
// maxPageSize <= 0 表示不限制每页大小。
func ValidatePagination(page, pageSize, maxPageSize int64) (offset int64, err error) {
	if page < 0 {
		return 0, ErrInvalidPage
	}
	if pageSize < 1 {
		return 0, fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidPageSize, pageSize)
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		return 0, fmt.Errorf("%w: must be <= %d, got %d", ErrInvalidPageSize, maxPageSize, pageSize)
	}
	if page > math.MaxInt64/pageSize {
		return 0, ErrPageOverflow
	}
	return page * pageSize, nil
}

// CalculateTotalPages 计算总页数（向上取整）。
// total 或 pageSize <= 0 时返回 0。
func CalculateTotalPages(total, pageSize int64) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}
	return totalPages
}

// Window 计算在长度为 total 的有序序列上 [offset, offset+pageSize) 的切片边界。
//
// ok 为 false 表示 offset 已越过序列末尾（空序列的首页除外），调用方应回落到权威数据源。
func Window(total, offset, pageSize int64) (start, end int64, ok bool) {
	if offset < 0 || pageSize < 1 {
		return 0, 0, false
	}
	if offset >= total {
		return 0, 0, total == 0 && offset == 0
	}
	end = offset + min(pageSize, total-offset)
	return offset, end, true
}
