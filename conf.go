package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Output struct {
		File           string `toml:"file"`
		LogDir         string `toml:"logDir"`
		OutputTerminal bool   `toml:"outputTerminal"`
	} `toml:"output"`
	Task struct {
		Workers  int  `toml:"workers"`
		BufSize  int  `toml:"bufSize"`
		FailFast bool `toml:"failFast"`
	} `toml:"task"`
	Layer struct {
		Name           string `toml:"name"`
		SortByKey      string `toml:"sortByKey"`
		MinZoom        int    `toml:"minZoom"`
		MaxZoom        int    `toml:"maxZoom"`
		LimitSizeBytes int    `toml:"limitSizeBytes"`
	} `toml:"layer"`
}

// InitConf loads the optional TOML config. Every key has a default, so
// the tool runs with nothing but an input path.
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	viper.SetConfigType("toml")
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("config file(%s) not found, using defaults\n", cfgFile)
	} else {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Printf("read config file(%s) error, details: %s\n", viper.ConfigFileUsed(), err)
			os.Exit(1)
		}
	}
	viper.AutomaticEnv() // read in environment variables that match

	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "LineTiler")
	viper.SetDefault("output.file", "out.pmtiles")
	viper.SetDefault("output.outputTerminal", true)
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.bufSize", 64)
	viper.SetDefault("layer.name", "layer1")
	viper.SetDefault("layer.sortByKey", "count")
	viper.SetDefault("layer.minZoom", 0)
	viper.SetDefault("layer.maxZoom", 12)
	viper.SetDefault("layer.limitSizeBytes", 200*1024)

	if err := viper.Unmarshal(&conf); err != nil {
		panic("unable to parse config file")
	}
}
