// Package xrun 管理进程内长期运行的服务。
//
// 任一服务返回错误或收到退出信号时所有服务的 ctx 被取消，服务应随之返回。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithName("xtrackd"), xrun.WithLogger(logger)},
//		xrun.Service{Name: "http", Run: xrun.HTTPServer(server, 10*time.Second)},
//		xrun.Service{Name: "snapshot-warmer", Run: xrun.Ticker(5*time.Minute, true, warm)},
//	)
//	if err != nil && !errors.Is(err, xrun.ErrSignal) {
//		return err
//	}
package xrun
