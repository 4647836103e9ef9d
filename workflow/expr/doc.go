/*
Package expr 实现条件步骤使用的受限表达式语言。

表达式先解析为 AST，再针对只读的 [Scope] 求值。语言中没有循环、
赋值或用户自定义函数，求值必然终止且没有副作用。

语法：

	variables.<stepId>[.<field>...]   已提交的步骤输出
	input[.<field>...]                条件步骤自身的输入
	length(x) / len(x) / x.length     字符串（按 rune）、切片、映射的长度
	== != > < >= <=                   数值或字符串比较
	&& || !  以及 and or not          布尔运算（短路）
	"str" 'str' 42 -1.5 true false null

示例：

	length(variables.step1) > 100 && input.lang == "en"
*/
package expr
