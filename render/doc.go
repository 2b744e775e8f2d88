// Package render 提供有界并发的渲染任务队列。
//
// 任务按优先级出队，同优先级保持提交顺序，同时运行数不超过配置上限。
// 渲染本身交给外部执行器完成，队列只负责调度、状态跟踪与协作取消，
// 失败不自动重试。
package render
