package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSubjects(t *testing.T) {
	id := "5b0e7c1a"
	assert.Equal(t, "vento.run.5b0e7c1a.started", SubjectRunStarted(id))
	assert.Equal(t, "vento.run.5b0e7c1a.completed", SubjectRunCompleted(id))
	assert.Equal(t, "vento.run.5b0e7c1a.failed", SubjectRunFailed(id))
	assert.Equal(t, "vento.run.5b0e7c1a.warning", SubjectRunWarning(id))
}

func TestRunRequestDefaults(t *testing.T) {
	var ev RunRequestEvent
	require.NoError(t, json.Unmarshal([]byte(`{"source":"cron"}`), &ev))
	assert.Zero(t, ev.TopPercent)
	assert.Equal(t, "cron", ev.Source)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{URL: "nats://localhost:4222"}.withDefaults()
	assert.Equal(t, "vento", o.Name)
	assert.Equal(t, 30*24*time.Hour, o.MaxAge)

	o = Options{Name: "vento-a", MaxAge: time.Hour}.withDefaults()
	assert.Equal(t, "vento-a", o.Name)
	assert.Equal(t, time.Hour, o.MaxAge)
}

func TestNewNATSClientNeedsURL(t *testing.T) {
	_, err := NewNATSClient(context.Background(), Options{}, slog.Default())
	assert.Error(t, err)
}

func TestSubjectRunAllCoversRunSubjects(t *testing.T) {
	for _, s := range []string{SubjectRunRequest, SubjectRunStats, SubjectRunStarted("x"), SubjectRunWarning("x")} {
		assert.True(t, strings.HasPrefix(s, strings.TrimSuffix(SubjectRunAll, ">")), s)
	}
}
