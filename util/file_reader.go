package util

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// ParseJSONFile reads a file and parses it as JSON, using the provided object.
func ParseJSONFile(destination interface{}, path string) bool {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing JSON file")

	if path == "" {
		log.Error("Missing file path")
		return false
	}
	dat, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to read file")
		return false
	}
	if err := json.Unmarshal(dat, destination); err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to parse file")
		return false
	}

	return true
}
