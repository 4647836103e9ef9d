/*
Package workflow 提供工作流定义与执行引擎。

# 概述

workflow 包定义工作流的数据模型（Workflow 与三种 Step），并实现按声明
顺序驱动步骤执行的 Engine。一次 Execute 调用拥有独立的 VariableStore
与执行历史，步骤之间通过已提交的输出传递数据，首个失败步骤即终止执行。

# 核心类型

  - Step：封闭的步骤和类型（AgentStep / ConditionStep / ParallelStep）
  - Workflow：有序步骤序列，注册后不可变
  - VariableStore：按提交顺序保存步骤输出，每个步骤 ID 只能写入一次
  - HistoryEntry：单个叶子步骤（Agent 步骤或并行分支）的执行记录
  - ExecutionResult：一次执行的变量快照、历史与元数据
  - Engine：顺序执行、条件分支递归、并行扇出与执行截止时间

# 输入传递

顶层第一个步骤接收工作流输入，其后每个步骤接收前一个兄弟步骤的输出。
条件分支的第一个步骤接收条件步骤自身的输入；并行步骤的所有分支接收
相同的输入。

# 并行策略

  - ParallelWaitAll：默认，所有分支执行完毕后再汇报第一个失败
  - ParallelFailFast：首个分支失败即取消其余分支

# 事件

通过 WithEventEmitter 在 context 中注入回调，可接收 step_start、
step_complete、step_error、attempt_failed、fallback 事件。
*/
package workflow
