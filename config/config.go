/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads and validates the master process's static
// configuration: listener bindings, TLS front certificates, worker
// count, buffer sizes and the StatsD endpoint, per §6. Loading uses
// spf13/viper so the same struct can be populated from a file, the
// environment or bound cobra flags; validation uses
// go-playground/validator struct tags rather than hand-written checks.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	liberr "github.com/flowgate/flowgate/errors"
)

// Listener is one bound front: a TCP port speaking either plain HTTP or
// TLS. TLSCertFile/TLSKeyFile are required when TLS is true and ignored
// otherwise.
type Listener struct {
	Address     string `mapstructure:"address" validate:"required,ip|hostname"`
	Port        int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	TLS         bool   `mapstructure:"tls"`
	TLSCertFile string `mapstructure:"tls_cert_file" validate:"required_if=TLS true,omitempty,file"`
	TLSKeyFile  string `mapstructure:"tls_key_file" validate:"required_if=TLS true,omitempty,file"`
}

// Metrics configures the dual Prometheus/StatsD exporter built in the
// metrics package.
type Metrics struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	PrometheusAddr    string `mapstructure:"prometheus_addr" validate:"omitempty,hostname_port"`
	StatsdAddr        string `mapstructure:"statsd_addr" validate:"omitempty,hostname_port"`
	StatsdPrefix      string `mapstructure:"statsd_prefix"`
}

// Buffers overrides the default buffer and command-channel sizes named
// throughout §4, used when the default capacity does not suit a
// deployment's traffic profile.
type Buffers struct {
	SessionBufferSize    int `mapstructure:"session_buffer_size" validate:"omitempty,min=4096"`
	CommandBufferSize    int `mapstructure:"command_buffer_size" validate:"omitempty,min=4096"`
	CommandMaxBufferSize int `mapstructure:"command_max_buffer_size" validate:"omitempty,min=4096"`
}

// Config is the complete master-process configuration, the root object
// viper unmarshals into.
type Config struct {
	WorkerCount   int        `mapstructure:"worker_count" validate:"required,min=1,max=256"`
	CommandSocket string     `mapstructure:"command_socket" validate:"required"`
	WorkerBinary  string     `mapstructure:"worker_binary" validate:"required"`
	Listeners     []Listener `mapstructure:"listeners" validate:"required,min=1,dive"`
	Metrics       Metrics    `mapstructure:"metrics"`
	Buffers       Buffers    `mapstructure:"buffers"`
	LogLevel      string     `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
}

// Default returns a Config with one worker, the default command socket
// path, log level "info", and the default session and command-channel
// buffer sizes. Listeners and metrics are left unset.
func Default() Config {
	return Config{
		WorkerCount:   1,
		CommandSocket: "/var/run/flowgate/command.sock",
		LogLevel:      "info",
		Buffers: Buffers{
			SessionBufferSize:    16 * 1024,
			CommandBufferSize:    1_000_000,
			CommandMaxBufferSize: 2_000_000,
		},
	}
}

// Load reads path through viper (format inferred from its extension),
// merges it over Default, and validates the result. An empty path loads
// only Default plus environment overrides under the FLOWGATE_ prefix.
func Load(path string) (Config, liberr.Error) {
	v := viper.New()
	v.SetEnvPrefix("flowgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("worker_count", def.WorkerCount)
	v.SetDefault("command_socket", def.CommandSocket)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("buffers.session_buffer_size", def.Buffers.SessionBufferSize)
	v.SetDefault("buffers.command_buffer_size", def.Buffers.CommandBufferSize)
	v.SetDefault("buffers.command_max_buffer_size", def.Buffers.CommandMaxBufferSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, ErrorConfigRead.Error(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ErrorConfigUnmarshal.Error(err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, ErrorConfigValidate.Error(err)
	}

	return cfg, nil
}
