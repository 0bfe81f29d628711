// File: internal/browser/session_test.go

package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFoundResult(t *testing.T) {
	s := &Session{logger: zap.NewNop()}

	tests := []struct {
		name      string
		err       error
		wantFound bool
		wantErr   bool
	}{
		{"no error means found", nil, true, false},
		{"deadline means absent", context.DeadlineExceeded, false, false},
		{"wrapped deadline means absent", fmt.Errorf("run: %w", context.DeadlineExceeded), false, false},
		{"cancellation propagates", context.Canceled, false, true},
		{"protocol failure propagates", errors.New("target crashed"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := s.foundResult(tt.err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCombineContextCancelsWithSecondary(t *testing.T) {
	parent := context.Background()
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := combineContext(parent, secondary)
	defer cancel()

	require.NoError(t, combined.Err())
	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with the secondary context")
	}
}

func TestCombineContextCancelsWithParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()

	combined, cancel := combineContext(parent, context.Background())
	defer cancel()

	cancelParent()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with the parent context")
	}
}

func TestResourceError(t *testing.T) {
	cause := errors.New("chrome exited")
	err := &ResourceError{Op: "session launch", Err: cause}
	assert.Contains(t, err.Error(), "session launch")
	assert.ErrorIs(t, err, cause)
}

func TestNewSessionIDIsUnique(t *testing.T) {
	assert.NotEqual(t, newSessionID(), newSessionID())
}
