// Package web3 定义链上锚定的抽象接口与链端点配置。
// 编排运行成功后，处理器会把当时的链 ID 与区块高度记录在
// 运行结果旁，使指纹链头可以对应到一个外部时间点。
package web3
