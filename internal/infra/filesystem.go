package infra

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/temanrandom/menfesbot/internal/config"
)

// GetWorkDir resolves (and creates, if needed) a path inside the bot's dot
// directory.
func GetWorkDir(path ...string) string {
	parts := append([]string{config.Get().DotPath}, path...)
	workDir := filepath.Join(parts...)
	if err := os.MkdirAll(workDir, os.ModePerm); err != nil {
		log.Fatalln(err)
	}
	return workDir
}
