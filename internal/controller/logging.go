package controller

import (
	"fmt"
)

// logInfo logs at INFO level to both local logger and cloud logger
func (c *Controller) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("%s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogInfo(msg)
	}
}

// logWarning logs at WARNING level to both local logger and cloud logger
func (c *Controller) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("Warning: %s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogWarning(msg)
	}
}

// logError logs at ERROR level to both local logger and cloud logger
func (c *Controller) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("Error: %s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogError(msg)
	}
}

// logDebug logs state transitions and observation windows, local only and
// only with logging.verbose
func (c *Controller) logDebug(format string, args ...interface{}) {
	if c.config == nil || !c.config.Logging.Verbose {
		return
	}
	c.logger.Printf("Debug: %s", fmt.Sprintf(format, args...))
}
