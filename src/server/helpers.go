package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/models"

	"github.com/gin-gonic/gin"
)

const maxBodySize = 64 * 1024

// -----------------------------------------------------------------------------

// decodeThresholdsUpdate parses a partial threshold update. Unknown keys and
// non-numeric values are configuration errors so a typo cannot silently
// become a no-op.
func decodeThresholdsUpdate(body io.Reader) (models.MThresholdsUpdate, error) {
	var update models.MThresholdsUpdate

	dec := json.NewDecoder(io.LimitReader(body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		if errors.Is(err, io.EOF) {
			return update, helpers.NewConfigurationError("empty threshold update")
		}
		return update, helpers.NewConfigurationError("invalid threshold update: %v", err)
	}
	if update.IsEmpty() {
		return update, helpers.NewConfigurationError("threshold update names no thresholds")
	}
	return update, nil
}

// -----------------------------------------------------------------------------

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// -----------------------------------------------------------------------------

// requestLogger writes one debug line per request through the relay logger.
func (s *RelayServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
