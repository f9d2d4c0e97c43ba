package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const defaultLogFile = "logs/analytics-api.log"

// LogWriter is the writer used for application and database logs. Until
// InitLogging runs it points at stdout.
var LogWriter io.Writer = os.Stdout

// LogFilePath returns the log file location, overridable with LOG_FILE.
func LogFilePath() string {
	if path := os.Getenv("LOG_FILE"); path != "" {
		return path
	}
	return defaultLogFile
}

// InitLogging routes the standard logger to stdout plus the log file. When
// the file cannot be opened, logging stays on stdout and the API keeps
// serving.
func InitLogging() (*os.File, io.Writer) {
	path := LogFilePath()
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create log directory for %s: %v", path, err)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Warning: Failed to open log file %s: %v", path, err)
		LogWriter = os.Stdout
		log.SetOutput(LogWriter)
		return nil, LogWriter
	}

	LogWriter = io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(LogWriter)
	return logFile, LogWriter
}
