package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/zhouchenh/trustDNS/internal/common"
	"github.com/zhouchenh/trustDNS/internal/config"
	"github.com/zhouchenh/trustDNS/internal/core"
	_ "github.com/zhouchenh/trustDNS/internal/features"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

var (
	configFilePath = flag.String("config", "", "Specify a config file")
	version        = flag.Bool("version", false, "Print version information and exit")
	test           = flag.Bool("test", false, "Test the config file and exit")
)

func printVersion() {
	version := core.VersionStatement()
	for _, s := range version {
		common.Output(s)
	}
}

func getConfigFilePath() string {
	return *configFilePath
}

func open(filePath string) (*os.File, error) {
	switch filePath {
	case "":
		if env := os.Getenv(core.EnvKey("config", "file", "path")); env != "" {
			if file, err := os.Open(env); err == nil {
				return file, err
			}
		}
		if env := os.Getenv(core.EnvKey("config", "dir", "path")); env != "" {
			if file, err := os.Open(filepath.Join(env, "config.json")); err == nil {
				return file, err
			}
		}
		return os.Open("config.json")
	case "-":
		return os.Stdin, nil
	default:
		return core.OpenFile(filePath)
	}
}

func main() {
	flag.Parse()
	printVersion()
	if *version {
		return
	}
	configFilePath := getConfigFilePath()
	envConfigDirPath := core.EnvKey("config", "dir", "path")
	if _, isSet := os.LookupEnv(envConfigDirPath); !isSet {
		if executablePath, err := os.Executable(); err == nil {
			_ = os.Setenv(envConfigDirPath, filepath.Dir(executablePath))
		}
	}
	file, err := open(configFilePath)
	if err != nil {
		common.ErrOutput(common.Concatenate("config: Failed to open file: ", err))
		os.Exit(1)
	}
	_ = os.Setenv(envConfigDirPath, filepath.Dir(file.Name()))
	cfg, err := config.LoadConfig(file)
	_ = file.Close()
	if err != nil {
		common.ErrOutput(common.Concatenate("config: Failed to load config: ", err))
		os.Exit(1)
	}
	if *test {
		common.Output("config: Syntax is OK")
		os.Exit(0)
	}
	logger.SetLogLevel(logger.ParseLevel(cfg.LogLevel))
	logger.SetTimestamp(cfg.LogTimestamp)

	instance := core.NewInstance(cfg)
	if err := instance.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start trust anchor maintenance")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	instance.Stop()
}
