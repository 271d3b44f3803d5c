package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/a23comunicacoes/oregon-flow/agent"
	"github.com/a23comunicacoes/oregon-flow/config"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "oregonflow", "namespace used in storage")
	cmd.Flags().String("postgres-dsn", "", "postgres connection string")
	cmd.Flags().String("gateway-url", "", "base url of the messaging gateway")
	cmd.Flags().String("crud-url", "", "base url of the record crud service")
	cmd.Flags().String("analytics-file", "", "file to append run state change events to")
	cmd.Flags().Duration("run-sweep-interval", time.Minute, "interval between run maintenance sweeps")
	cmd.Flags().Duration("action-sweep-interval", time.Second, "interval between scheduled action sweeps")
	cmd.Flags().Int("sweep-batch-size", 50, "max items handled per sweep pass")
	cmd.Flags().Int("step-limit", 1000, "max nodes executed in one advance")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.PostgresDSN = viper.GetString("postgres-dsn")
	c.cfg.GatewayBaseUrl = viper.GetString("gateway-url")
	c.cfg.CrudBaseUrl = viper.GetString("crud-url")
	c.cfg.AnalyticsFile = viper.GetString("analytics-file")
	c.cfg.RunSweepInterval = viper.GetDuration("run-sweep-interval")
	c.cfg.ActionSweepInterval = viper.GetDuration("action-sweep-interval")
	c.cfg.SweepBatchSize = viper.GetInt("sweep-batch-size")
	c.cfg.StepLimit = viper.GetInt("step-limit")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "oregon-flow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
