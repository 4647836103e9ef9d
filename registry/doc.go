/*
Package registry 保存已注册的 Agent 与 Workflow。

# 概述

Registry 在注册时完成全部校验：Agent 字段范围、工作流步骤 ID 唯一性、
引用的 Agent 是否存在、条件表达式能否解析。注册成功后保存深拷贝，
读取时同样返回拷贝，因此已注册定义不会被调用方修改。

注册操作互斥执行，读取可并发进行。
*/
package registry
