package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/eunmann/salesetl/pkg/logging"
	"github.com/rs/zerolog"
)

func TestFromContext_FallsBackToProcessLogger(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(zerolog.New(&buf).With().Str("process", "yes").Logger())
	defer logging.Init(false, false)

	//nolint:staticcheck // nil context is part of the contract
	l := FromContext(nil)
	l.Info().Msg("nil ctx")
	l = FromContext(context.Background())
	l.Info().Msg("bare ctx")

	if got := strings.Count(buf.String(), `"process":"yes"`); got != 2 {
		t.Errorf("expected 2 lines from process logger, got %d: %s", got, buf.String())
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf).With().Str("custom", "field").Logger())

	l := FromContext(ctx)
	l.Info().Msg("test")

	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithInt(ctx, "iteration", 3)
	ctx = WithStr(ctx, "day", "2024/01/02/")
	ctx = WithStr(ctx, "schema", "prod")

	l := FromContext(ctx)
	l.Info().Msg("upserted")

	out := buf.String()
	for _, want := range []string{`"iteration":3`, `"day":"2024/01/02/"`, `"schema":"prod"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestWithStr_DoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := WithLogger(context.Background(), zerolog.New(&buf))
	_ = WithStr(parent, "schema", "playground")

	l := FromContext(parent)
	l.Info().Msg("parent")

	if strings.Contains(buf.String(), "playground") {
		t.Errorf("parent logger picked up child field: %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(zerolog.New(&buf))
	defer logging.Init(false, false)

	ctx := WithComponent(context.Background(), "loader")
	l := FromContext(ctx)
	l.Info().Msg("poll")

	if !strings.Contains(buf.String(), `"component":"loader"`) {
		t.Errorf("expected component field, got: %s", buf.String())
	}
}

func TestWithComponent_KeepsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithComponent(WithInt(ctx, "iteration", 2), "stager")

	l := FromContext(ctx)
	l.Info().Msg("staged")

	out := buf.String()
	if !strings.Contains(out, `"component":"stager"`) || !strings.Contains(out, `"iteration":2`) {
		t.Errorf("expected component and iteration fields, got: %s", out)
	}
}
