// Package store 提供工作流与渲染任务记录的持久化。
//
// 支持四种后端：内存（默认）、JSON 文件、Redis、SQLite。所有后端遵守
// 同一套语义：保存即整体覆盖，读取返回独立副本或反序列化的新对象，
// 记录不存在返回 NOT_FOUND，关闭后一律返回 STORE_CLOSED。
//
// 支持 Prune 的后端可以配合 Cleaner 周期性删除终结已久的记录。
// 工厂 New 根据配置选择后端，并自动挂接指标采集。
package store
