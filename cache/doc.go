// Package cache 提供 AI 结果缓存。
//
// 支持内存 LRU 与 Redis 两种后端。条目按 TTL 过期，过期检查在读取时
// 惰性执行。后端故障降级为未命中，不向调用方返回错误。
package cache
