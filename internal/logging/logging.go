// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level, format and an optional rotating log file.
type Options struct {
	Level  string
	Format string // text or json
	File   string
}

// New builds a logger writing to out and, when File is set, to a rotating
// file as well.
func New(opts Options, out io.Writer) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	log := logrus.New()
	log.SetLevel(level)

	switch opts.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q", opts.Format)
	}

	if opts.File != "" {
		out = io.MultiWriter(out, rotatingFile(opts.File))
	}
	log.SetOutput(out)
	return log, nil
}

// Setup configures the standard logger and returns it.
func Setup(opts Options) (*logrus.Logger, error) {
	configured, err := New(opts, os.Stdout)
	if err != nil {
		return nil, err
	}
	std := logrus.StandardLogger()
	std.SetLevel(configured.GetLevel())
	std.SetFormatter(configured.Formatter)
	std.SetOutput(configured.Out)
	return std, nil
}

func rotatingFile(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}
