/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package log provides the module based, leveled logger used across the issuance client.
package log

import (
	"github.com/hyperledger/aries-framework-go/component/log"
	spilog "github.com/hyperledger/aries-framework-go/spi/log"
)

// Level is a log level for a logging message.
type Level = spilog.Level

// Log levels.
const (
	CRITICAL = spilog.CRITICAL
	ERROR    = spilog.ERROR
	WARNING  = spilog.WARNING
	INFO     = spilog.INFO
	DEBUG    = spilog.DEBUG
)

// Log is an implementation of Logger interface.
// It encapsulates default or custom logger to provide module and level based logging.
type Log = log.Log

// LoggerProvider is a factory for moduled loggers.
type LoggerProvider = spilog.LoggerProvider

// New creates and returns a Logger implementation based on given module name.
// note: the underlying logger instance is lazy initialized on first use.
func New(module string) *Log {
	return log.New(module)
}

// Initialize sets new custom logging provider which takes over logging operations.
// It is required to call this function before making any loggings for using custom loggers.
func Initialize(l LoggerProvider) {
	log.Initialize(l)
}

// SetLevel - setting log level for given module
//
//	Parameters:
//	module is module name
//	level is logging level
//
// If not set default logging level is info.
func SetLevel(module string, level Level) {
	log.SetLevel(module, level)
}

// GetLevel - getting log level for given module.
func GetLevel(module string) Level {
	return log.GetLevel(module)
}

// ParseLevel returns the log level from a string representation.
func ParseLevel(level string) (Level, error) {
	return log.ParseLevel(level)
}
