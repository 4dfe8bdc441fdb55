// File: api/options.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Recognized configuration options (spec §6). All fields are optional;
// WithDefaults replaces zero numeric/duration fields with the documented
// default in Default(); bool fields keep whatever value they hold.

package api

import "time"

// Options aggregates every recognized configuration knob shared by the
// Service, transport sessions, and the WebSocket layer.
type Options struct {
	WorkerCount int  `mapstructure:"worker_count"` // default: runtime.NumCPU()
	Polling     bool `mapstructure:"polling"`      // default: false

	ReceiveBufferInitial int `mapstructure:"receive_buffer_initial"` // default: 8192
	ReceiveBufferLimit   int `mapstructure:"receive_buffer_limit"`   // default: 0 (unbounded)
	SendBufferLimit      int `mapstructure:"send_buffer_limit"`      // default: 0 (unbounded)

	NoDelay      bool `mapstructure:"no_delay"`
	KeepAlive    bool `mapstructure:"keep_alive"`
	ReuseAddress bool `mapstructure:"reuse_address"`
	ReusePort    bool `mapstructure:"reuse_port"`

	WSMaxMessageSize   int           `mapstructure:"ws_max_message_size"`   // default: 16 MiB
	WSFragmentThresh   int           `mapstructure:"ws_fragment_threshold"` // default: 65536
	WSCloseTimeout     time.Duration `mapstructure:"ws_close_timeout"`      // default: 5s

	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"` // default: 5s
}

// Default returns the documented defaults from spec §6.
func Default() Options {
	return Options{
		WorkerCount:          0, // resolved to runtime.NumCPU() by core.NewService
		Polling:              false,
		ReceiveBufferInitial: 8192,
		ReceiveBufferLimit:   0,
		SendBufferLimit:      0,
		NoDelay:              true,
		KeepAlive:            true,
		ReuseAddress:         true,
		ReusePort:            false,
		WSMaxMessageSize:     16 << 20,
		WSFragmentThresh:     65536,
		WSCloseTimeout:       5 * time.Second,
		TLSHandshakeTimeout:  5 * time.Second,
	}
}

// WithDefaults fills zero-valued fields of o with the documented defaults,
// leaving explicit values (including explicit zero for bool fields) intact
// where a caller has opted out. Numeric fields treat 0 as "unset".
func (o Options) WithDefaults() Options {
	d := Default()
	if o.WorkerCount == 0 {
		o.WorkerCount = d.WorkerCount
	}
	if o.ReceiveBufferInitial == 0 {
		o.ReceiveBufferInitial = d.ReceiveBufferInitial
	}
	if o.WSMaxMessageSize == 0 {
		o.WSMaxMessageSize = d.WSMaxMessageSize
	}
	if o.WSFragmentThresh == 0 {
		o.WSFragmentThresh = d.WSFragmentThresh
	}
	if o.WSCloseTimeout == 0 {
		o.WSCloseTimeout = d.WSCloseTimeout
	}
	if o.TLSHandshakeTimeout == 0 {
		o.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	return o
}
