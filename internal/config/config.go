// Package config holds the flat, JSON-taggable configuration structs for
// each CLI role (send/receive), loaded from flags and optionally
// overridden by a JSON file passed via -c.
package config

import (
	"encoding/json"
	"os"
)

// Sender is the configuration for the sending role.
type Sender struct {
	Code        string `json:"code"`
	Key         string `json:"key"`
	Crypt       string `json:"crypt"`
	Listen      string `json:"listen"`
	DataShard   int    `json:"datashard"`
	ParityShard int    `json:"parityshard"`
	Compress    bool   `json:"compress"`
	Class       string `json:"class"`        // "lan", "wan", or "" for auto-detect
	ExpireAfter int    `json:"expire_after"` // seconds, 0 = never
	StatsLog    string `json:"statslog"`
	Quiet       bool   `json:"quiet"`

	Paths []string `json:"paths"`
}

// Receiver is the configuration for the receiving role.
type Receiver struct {
	Code        string `json:"code"`
	Key         string `json:"key"`
	Crypt       string `json:"crypt"`
	DataShard   int    `json:"datashard"`
	ParityShard int    `json:"parityshard"`
	Compress    bool   `json:"compress"`
	MTU         int    `json:"mtu"`
	SndWnd      int    `json:"sndwnd"`
	RcvWnd      int    `json:"rcvwnd"`
	Out         string `json:"out"`
	StatsLog    string `json:"statslog"`
	Quiet       bool   `json:"quiet"`
}

// DefaultSender returns the flag defaults for the sending role.
func DefaultSender() Sender {
	return Sender{
		Crypt:       "aes",
		Listen:      ":0",
		DataShard:   10,
		ParityShard: 3,
		Compress:    true,
	}
}

// DefaultReceiver returns the flag defaults for the receiving role.
func DefaultReceiver() Receiver {
	return Receiver{
		Crypt:       "aes",
		DataShard:   10,
		ParityShard: 3,
		Compress:    true,
		MTU:         1350,
		SndWnd:      128,
		RcvWnd:      512,
	}
}

// ParseJSONFile decodes the JSON document at path into cfg, overriding
// whatever fields are present in the document. cfg must be a pointer to
// a Sender or Receiver previously populated from flags.
func ParseJSONFile(cfg any, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}
