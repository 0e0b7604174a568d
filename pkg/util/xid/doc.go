// Package xid 基于 sonyflake v2 生成运单记录的内部主键。
//
// 记录主键与运单号无关：运单号由 xtracking 的格式策略生成并校验唯一性，
// 主键只用于存储层的 _id。ID 为 base36 字符串，按时间大致有序。
//
//	gen, err := xid.NewGenerator(xid.WithMachineID(func() (uint16, error) { return 7, nil }))
//	id, err := gen.NewString(ctx)
//
// 多副本部署时通过 XTRACK_MACHINE_ID 显式分配机器 ID。
package xid
