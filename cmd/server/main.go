package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/riobard/tftpd/pkg/server"
	"github.com/riobard/tftpd/pkg/utils"
)

var (
	tftpPort       = utils.GetEnv[string]("TFTP_PORT", "69", false)
	logLevel       = utils.GetEnv[string]("TFTP_LOG_LEVEL", "debug", false)
	timeoutSeconds = utils.GetEnv[uint]("TFTP_TIMEOUT_SECONDS", "5", false)
	maxRetries     = utils.GetEnv[uint]("TFTP_MAX_RETRIES", "5", false)
	maxConnections = utils.GetEnv[uint]("TFTP_MAX_CONNECTIONS", "100", false)
	tftpBaseDir    = utils.GetEnv[string]("TFTP_BASE_DIR", utils.UserHomeDirPath(), false)
	tftpMode       = utils.GetEnv[string]("TFTP_MODE", "both", false)
)

func parseMode(m string) server.Mode {
	switch strings.ToLower(m) {
	case "read-only", "readonly":
		return server.ModeReadOnly
	case "write-only", "writeonly":
		return server.ModeWriteOnly
	default:
		return server.ModeBoth
	}
}

func main() {
	l := utils.NewLogger(logLevel)
	defer func() { _ = l.Sync() }()

	sugar := l.Sugar()

	s := server.NewServer(
		sugar, ":"+strings.TrimPrefix(tftpPort, ":"), tftpBaseDir, parseMode(tftpMode),
		timeoutSeconds, int(maxRetries), int(maxConnections),
	)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			sugar.Errorf("server stopped: %s", err.Error())
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan

	if err := s.Close(); err != nil {
		sugar.Errorf("error while closing server: %s", err.Error())
	}

	sugar.Infof("closed connection on port %s", tftpPort)
}
