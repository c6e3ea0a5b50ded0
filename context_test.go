package permitloader

import (
	"context"
	"testing"
	"time"
)

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RunIDFrom(ctx); ok {
		t.Errorf("run id found in an empty context")
	}
	if _, ok := startedTimeFrom(ctx); ok {
		t.Errorf("started time found in an empty context")
	}

	now := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	ctx = withStartedTime(withRunID(ctx, "run"), now)

	if id, _ := RunIDFrom(ctx); id != "run" {
		t.Errorf(`expected "run", but %q`, id)
	}
	if st, _ := startedTimeFrom(ctx); !st.Equal(now) {
		t.Errorf("expected %s, but %s", now, st)
	}
}
