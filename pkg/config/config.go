package config

import (
	"context"
	"strings"

	"ctfex.com/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LoadAndWatch reads config/{service}.yaml (or ./{service}.yaml) into out,
// lets {SERVICE}_* env vars override keys ("." -> "_"), and re-unmarshals
// on file change. onChange, if set, runs after every successful reload.
func LoadAndWatch(service string, out interface{}, onChange ...func()) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 例如 CTFEX_HTTP_ADDR 覆盖 http.addr
	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "config loaded",
		zap.String("service", service), zap.String("file", v.ConfigFileUsed()))

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.Unmarshal(out); err != nil {
			logger.Warn(context.Background(), "config reload failed",
				zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info(context.Background(), "config reloaded", zap.String("file", e.Name))
		for _, fn := range onChange {
			fn()
		}
	})
	v.WatchConfig()

	return v, nil
}
