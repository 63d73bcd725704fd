// Package registry 记录已部署的合约与受益人分配，使 Agent 无需重新部署即可重建。
// 记录保存在 Store 中，可以是进程内存、JSON 文件、MySQL 或 Redis。
package registry
