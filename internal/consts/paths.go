package consts

import (
	"os"
	"path/filepath"
)

const (
	TickloopDirName = ".tickloop"
	ConfigFileName  = "config.yaml"
	StoreFileName   = "scheduler.json"
)

func TickloopHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, TickloopDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(TickloopHomeDir(), ConfigFileName)
}

func DefaultStorePath() string {
	return filepath.Join(TickloopHomeDir(), StoreFileName)
}
