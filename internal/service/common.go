package service

import (
	"errors"
	"strings"

	"Hope_Community/internal/pkg"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizeLimit limit 缺省 20，限制在 [1, 100]；offset 小于 0 视为 0
func NormalizeLimit(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PageToOffset page 从 1 开始
func PageToOffset(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	size, _ = NormalizeLimit(size, 0)
	return size, (page - 1) * size
}

// notFound 把 gorm 的记录不存在转换成 404，其他错误原样返回
func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg.NotFound(message)
	}
	return err
}

func normalizeKey(stage, typ string) (string, string) {
	return strings.TrimSpace(stage), strings.TrimSpace(typ)
}
