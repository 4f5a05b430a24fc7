package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/testutil"
	"github.com/hupe1980/reactmesh/logging"
	"github.com/hupe1980/reactmesh/model"
	"github.com/hupe1980/reactmesh/tool"
)

func runCalculator(t *testing.T, obs core.Observer) *core.AgentResult {
	t.Helper()

	m := model.NewMockModel("mock",
		"this is not a step",
		testutil.NewResponseBuilder().Action("add", map[string]any{"a": 2, "b": 2}).String(),
		testutil.NewResponseBuilder().Final("4").String(),
	)

	a, err := agent.New("calc", m, func(o *agent.Options) {
		o.Tools = []tool.Tool{testutil.AddTool()}
		o.Observer = obs
	})
	require.NoError(t, err)

	res := a.Run(context.Background(), agent.Input{Instruction: "2+2"})
	require.Equal(t, core.StatusCompleted, res.Status)

	return res
}

func TestOTel(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	obs, err := NewOTel(func(o *OTelOptions) {
		o.TracerProvider = tp
		o.MeterProvider = mp
	})
	require.NoError(t, err)

	res := runCalculator(t, obs)

	spans := sr.Ended()

	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}

	assert.ElementsMatch(t, []string{
		"model.generate", "model.generate", "tool.call", "model.generate", "agent.run",
	}, names)

	var root sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "agent.run" {
			root = s
		}
	}

	require.NotNil(t, root)

	for _, s := range spans {
		if s != root {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), s.Name())
		}
	}

	var events []string
	for _, e := range root.Events() {
		events = append(events, e.Name)
	}

	assert.Contains(t, events, "correction")
	assert.Equal(t, res.Trace.Len(), strings.Count(strings.Join(events, ","), "step"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), sums["reactmesh.agent.runs"])
	assert.Equal(t, int64(3), sums["reactmesh.model.calls"])
	assert.Equal(t, int64(1), sums["reactmesh.tool.calls"])
	assert.Equal(t, int64(1), sums["reactmesh.agent.corrections"])
	assert.Empty(t, obs.active)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelDebug,
		Format: "json",
		Output: &buf,
	})

	runCalculator(t, NewLogObserver(logger))

	counts := map[string]int{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		assert.Equal(t, "observer", entry["component"])
		assert.Equal(t, "calc", entry["agent"])

		counts[entry["msg"].(string)]++
	}

	assert.Equal(t, 1, counts["observe.run.started"])
	assert.Equal(t, 3, counts["agent.model.call"])
	assert.Equal(t, 1, counts["tool.call.completed"])
	assert.Equal(t, 1, counts["observe.correction"])
	assert.Equal(t, 1, counts["observe.run.finished"])
	assert.Equal(t, 3, counts["observe.step"])
}
