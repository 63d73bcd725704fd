// Package deployers 负责把质押合约发布到账本。
//
// 所有部署器遵循相同的生命周期：Arm 在不改变账本状态的前提下检查前置条件，
// Deploy 只发布一次。部署后的初始化步骤按固定顺序执行且不会回滚。
package deployers
