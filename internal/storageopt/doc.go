// Package storageopt 存放 xcache、xmongo 与 xtracking 共用的存储辅助：
// 操作超时、调用计数，以及零基分页的校验与切片窗口。
package storageopt
