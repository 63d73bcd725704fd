// Package agents 为已部署的质押合约提供类型化操作。
// 读操作是普通的账本调用，每个写操作只提交一笔交易；账本错误原样返回给调用方。
package agents
