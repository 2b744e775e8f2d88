// Package workflow 实现视频生产工作流引擎。
//
// 一个工作流按固定顺序执行五个阶段：文案生成、翻译（可选）、
// 图标匹配（可选）、语音合成、渲染。AI 阶段委托给 [Invoker]
// （通常是 ai.Orchestrator），渲染阶段提交给 [RenderQueue] 并
// 轮询等待终结。可选阶段失败时降级继续，必选阶段失败则整个
// 工作流失败，对外错误只包含阶段名、错误类别与可读信息。
//
// [Engine] 并发运行多个工作流，单个工作流内阶段严格串行。
// 取消是协作式的：请求取消后在阶段边界生效，已提交的渲染任务
// 一并请求取消。进度按启用阶段的权重折算，跳过的阶段不计入。
package workflow
