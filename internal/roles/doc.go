// Package roles 定义参与编排的八个推理角色。
//
// 每个角色由两步能力构成：Render 依据请求与共享状态渲染出该角色的
// 指令文本（纯函数），Fold 把模型的原始输出折叠回共享状态（唯一的
// 状态变更点）。角色到模型的映射来自显式的 YAML 模型表，而不是由
// 角色类型名推导。
package roles
