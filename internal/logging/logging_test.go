package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New("warn", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = New("loud", "text", &buf)
	assert.Error(t, err)
	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
}

func TestSessionCollectsEverything(t *testing.T) {
	var buf bytes.Buffer
	base, err := New("info", "text", &buf)
	require.NoError(t, err)

	log, collector := NewSession(base, logrus.Fields{"session": "abc"})
	log.Debug("statement 1 ok")
	log.WithField("index", 2).WithError(errors.New("boom")).Error("statement 2 failed")

	entries := collector.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "debug", entries[0].Level)
	assert.Equal(t, "statement 1 ok", entries[0].Message)
	assert.Equal(t, "abc", entries[0].Details["session"])

	assert.Equal(t, "error", entries[1].Level)
	assert.Equal(t, 2, entries[1].Details["index"])
	assert.Equal(t, "boom", entries[1].Details[logrus.ErrorKey])
	assert.False(t, entries[1].Timestamp.Before(entries[0].Timestamp))

	// base output honors the base level
	assert.NotContains(t, buf.String(), "statement 1 ok")
	assert.Contains(t, buf.String(), "statement 2 failed")
}

func TestSessionsAreIsolated(t *testing.T) {
	base, err := New("error", "text", &bytes.Buffer{})
	require.NoError(t, err)

	a, ca := NewSession(base, nil)
	b, cb := NewSession(base, nil)
	a.Info("from a")
	b.Info("from b")
	b.Info("again b")

	assert.Len(t, ca.Entries(), 1)
	assert.Len(t, cb.Entries(), 2)
	assert.Empty(t, base.Hooks)
}

func TestSessionWithoutBase(t *testing.T) {
	log, collector := NewSession(nil, nil)
	log.Warn("no base")
	require.Len(t, collector.Entries(), 1)
	assert.Nil(t, collector.Entries()[0].Details)
}
