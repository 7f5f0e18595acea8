package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &Std{l: log.New(&buf, "", 0)}

	l.Debug("hidden %d", 1)
	l.Info("marked %d rows", 3)
	l.Warn("notify failed")
	assert.Equal(t, "INFO marked 3 rows\nWARN notify failed\n", buf.String())

	buf.Reset()
	l.debug = true
	l.Debug("shown")
	assert.Equal(t, "DEBUG shown\n", buf.String())
}

func TestFromConfigWithoutToken(t *testing.T) {
	_, ok := FromConfig("[api] ", "", "dev", false).(*Std)
	assert.True(t, ok)
}
