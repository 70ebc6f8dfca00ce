package main

import (
	"github.com/riobard/tftpd/pkg/client"
	"github.com/riobard/tftpd/pkg/utils"
)

var (
	logLevel = utils.GetEnv[string]("TFTP_LOG_LEVEL", "debug", false)
	numTries = utils.GetEnv[uint]("TFTP_NUM_TRIES", "5", false)
)

func main() {
	l := utils.NewLogger(logLevel).Sugar()
	c := client.NewClient(l, numTries)

	cli := client.NewCli(l, c)
	cli.Read()

	if err := c.Close(); err != nil {
		l.Error(err.Error())
	}
}
