package main

import (
	"resistance-be/internal/api/http"
	"resistance-be/internal/config"
	"resistance-be/internal/logger"
	"resistance-be/internal/service"
	"resistance-be/internal/state"
)

func main() {
	// 加载配置
	cfg := config.InitConfig()

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel)

	// 组装应用状态
	appState := state.NewAppState(
		cfg,
		service.NewRoomService(),
	)

	// 启动服务器
	http.RunServer(appState)
}
