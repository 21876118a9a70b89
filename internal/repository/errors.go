package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrTransient 表示死锁或锁等待超时一类的瞬态存储错误，调用方可重试
	ErrTransient = errors.New("repository: transient storage error")
)

// 特定资源的错误 (基于通用错误创建)
var (
	ErrWorldNotFound  = ErrNotFound
	ErrLevelNotFound  = ErrNotFound
	ErrPlayerNotFound = ErrNotFound
)
